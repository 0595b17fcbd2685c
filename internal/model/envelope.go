package model

// EventEnvelope is the payload published to Kafka for each accepted webhook
// delivery (via the outbox table and Debezium outbox SMT). Dedup hits never
// produce an envelope.
type EventEnvelope struct {
	DeliveryID   string `json:"delivery_id"`
	ConnectionID int64  `json:"connection_id"`
	EventType    string `json:"event_type"`
	RemoteID     string `json:"remote_id"`
}
