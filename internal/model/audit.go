package model

import "time"

// Executor provenance tags. A transition observed during a sync fetch carries
// ExecutorSyncFetch; one caused by a local command carries ExecutorCommand.
const (
	ExecutorSyncFetch = "sync-fetch"
	ExecutorCommand   = "command"
)

// AuditEntry is an append-only record of one observed or caused entity status
// transition. Never updated or deleted.
type AuditEntry struct {
	ID             int64        `db:"id"`
	ConnectionID   int64        `db:"connection_id"`
	ResourceType   ResourceType `db:"resource_type"`
	RemoteID       string       `db:"remote_id"`
	PreviousStatus string       `db:"previous_status"`
	NewStatus      string       `db:"new_status"`
	ExecutorApp    string       `db:"executor_app"`
	ExecutorUser   string       `db:"executor_user"`
	Evidence       []byte       `db:"evidence"`
	CreatedAt      time.Time    `db:"created_at"`
}
