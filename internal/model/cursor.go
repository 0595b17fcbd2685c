package model

import "time"

type CursorStatus string

const (
	CursorSuccess CursorStatus = "success"
	CursorPartial CursorStatus = "partial"
	CursorFailed  CursorStatus = "failed"
)

func (s CursorStatus) String() string { return string(s) }

// SyncCursor records the last synchronization point for a
// (connection, resource) pair. LastSuccessAt survives failed attempts, so
// consumers can tell "never synced" from "last attempt failed but data from
// LastSuccessAt is still valid".
type SyncCursor struct {
	ConnectionID  int64        `db:"connection_id"`
	ResourceType  ResourceType `db:"resource_type"`
	LastSuccessAt *time.Time   `db:"last_success_at"`
	LastAttemptAt *time.Time   `db:"last_attempt_at"`
	LastStatus    CursorStatus `db:"last_status"`
	LastJobID     string       `db:"last_job_id"`
	LastError     *string      `db:"last_error"`
	UpdatedAt     time.Time    `db:"updated_at"`
}
