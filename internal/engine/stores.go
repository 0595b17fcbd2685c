// Package engine is the job and synchronization core: it accepts units of
// work targeting a connection, guarantees at most one running job per
// connection, and executes paginated sync and idempotent write commands
// against the rate-limited remote API.
package engine

import (
	"context"
	"time"

	"github.com/marketgate/mp-gateway/internal/model"
)

// Narrow store contracts consumed by the engine. The sqlx repositories in
// internal/repository satisfy them; tests use in-memory fakes.

type ConnectionStore interface {
	GetByID(ctx context.Context, id int64) (*model.Connection, error)
}

type JobStore interface {
	Create(ctx context.Context, j *model.Job) error
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Finish(ctx context.Context, id string, status model.JobStatus, summary []byte, errMsg string, at time.Time) error
	LastByConnection(ctx context.Context, connectionID int64) (*model.Job, error)
}

type CursorStore interface {
	Record(ctx context.Context, connectionID int64, resource model.ResourceType,
		status model.CursorStatus, jobID string, errMsg string, at time.Time) error
	ListByConnection(ctx context.Context, connectionID int64) ([]model.SyncCursor, error)
}

type EntityStore interface {
	Upsert(ctx context.Context, e *model.Entity) (model.EntityChange, error)
}

type AuditStore interface {
	Append(ctx context.Context, e model.AuditEntry) error
}

type CommandStore interface {
	GetByKey(ctx context.Context, connectionID int64, idempotencyKey string) (*model.Command, error)
	CreateRunning(ctx context.Context, c *model.Command) (created bool, err error)
	CompleteSuccess(ctx context.Context, id string, response []byte,
		update *model.EntityStatusUpdate, audit *model.AuditEntry) error
	Fail(ctx context.Context, id string, errMsg string) error
}
