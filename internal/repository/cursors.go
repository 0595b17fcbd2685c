package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// CursorsRepository upserts one row per (connection, resource). The upsert
// moves last_success_at forward only on a success outcome, so a failed
// attempt never erases the last good synchronization point.
type CursorsRepository interface {
	Record(ctx context.Context, connectionID int64, resource model.ResourceType,
		status model.CursorStatus, jobID string, errMsg string, at time.Time) error
	ListByConnection(ctx context.Context, connectionID int64) ([]model.SyncCursor, error)
}

type CursorsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCursorsRepository(db *sqlx.DB) *CursorsRepositoryImpl {
	return &CursorsRepositoryImpl{db: db}
}

var _ CursorsRepository = (*CursorsRepositoryImpl)(nil)

func (r *CursorsRepositoryImpl) Record(ctx context.Context, connectionID int64, resource model.ResourceType,
	status model.CursorStatus, jobID string, errMsg string, at time.Time) error {
	var errCol *string
	if errMsg != "" {
		errCol = &errMsg
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors
		    (connection_id, resource_type, last_success_at, last_attempt_at, last_status, last_job_id, last_error, updated_at)
		VALUES
		    (?, ?, IF(? = 'success', ?, NULL), ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
		    last_attempt_at = VALUES(last_attempt_at),
		    last_status     = VALUES(last_status),
		    last_job_id     = VALUES(last_job_id),
		    last_error      = VALUES(last_error),
		    last_success_at = IF(VALUES(last_status) = 'success', VALUES(last_attempt_at), last_success_at),
		    updated_at      = NOW()
	`, connectionID, resource.String(), status.String(), at, at, status.String(), jobID, errCol)
	return err
}

func (r *CursorsRepositoryImpl) ListByConnection(ctx context.Context, connectionID int64) ([]model.SyncCursor, error) {
	var list []model.SyncCursor
	err := r.db.SelectContext(ctx, &list, `
		SELECT connection_id, resource_type, last_success_at, last_attempt_at,
		       last_status, last_job_id, last_error, updated_at
		  FROM sync_cursors
		 WHERE connection_id = ?
		 ORDER BY resource_type
	`, connectionID)
	return list, err
}
