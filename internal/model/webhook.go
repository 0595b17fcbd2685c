package model

import "time"

type VerifyStatus string

const (
	VerifyOK     VerifyStatus = "ok"
	VerifyFailed VerifyStatus = "failed"
)

// WebhookEvent is one inbound delivery record. EventKey is NULL for
// deliveries that failed verification, so they never occupy a slot in the
// dedup space; verified deliveries are unique on event_key and a repeated
// delivery only bumps DedupCount.
type WebhookEvent struct {
	ID           string       `db:"id"`
	ConnectionID int64        `db:"connection_id"`
	EventKey     *string      `db:"event_key"`
	EventType    string       `db:"event_type"`
	RemoteID     string       `db:"remote_id"`
	BodyHash     string       `db:"body_hash"`
	VerifyStatus VerifyStatus `db:"verify_status"`
	DedupCount   int          `db:"dedup_count"`
	ReceivedAt   time.Time    `db:"received_at"`
}
