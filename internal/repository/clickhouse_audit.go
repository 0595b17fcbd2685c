package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// CHAuditRepository lists audit entries from ClickHouse (reporting view,
// replicated from MySQL; the write path never touches it).
type CHAuditRepository interface {
	ListByConnection(ctx context.Context, connectionID int64, resource model.ResourceType, remoteID string, limit, offset int) ([]model.AuditEntry, error)
}

type chAuditRepository struct {
	ch *sqlx.DB
}

func NewCHAuditRepository(ch *sqlx.DB) CHAuditRepository {
	return &chAuditRepository{ch: ch}
}

func (r *chAuditRepository) ListByConnection(ctx context.Context, connectionID int64, resource model.ResourceType, remoteID string, limit, offset int) ([]model.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, connection_id, resource_type, remote_id, previous_status,
		       new_status, executor_app, executor_user, evidence, created_at
		FROM mpgw.audit_entries_latest
		WHERE connection_id = ?
	`
	args := []any{connectionID}

	if resource != "" {
		q += " AND resource_type = ?"
		args = append(args, resource.String())
	}
	if remoteID != "" {
		q += " AND remote_id = ?"
		args = append(args, remoteID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.AuditEntry
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
