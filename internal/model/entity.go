package model

import "time"

// Entity mirrors one remote resource, identified by the composite natural key
// (connection_id, marketplace, resource_type, remote_id). Raw carries the
// untransformed remote representation; the rest is a small projected set used
// for querying.
type Entity struct {
	ID           string       `db:"id"`
	ConnectionID int64        `db:"connection_id"`
	Marketplace  string       `db:"marketplace"`
	ResourceType ResourceType `db:"resource_type"`
	RemoteID     string       `db:"remote_id"`
	Status       string       `db:"status"`
	Title        string       `db:"title"`
	Amount       int64        `db:"amount"` // minor units
	Raw          []byte       `db:"raw"`
	RawHash      string       `db:"raw_hash"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// EntityChange describes the effect of an upsert. Unchanged means the raw
// payload hash matched the stored row and nothing was written.
type EntityChange struct {
	Created        bool
	Unchanged      bool
	StatusChanged  bool
	PreviousStatus string
}

// EntityStatusUpdate is a projected-status write applied when a local command
// succeeds against the remote.
type EntityStatusUpdate struct {
	ConnectionID int64
	ResourceType ResourceType
	RemoteID     string
	NewStatus    string
}
