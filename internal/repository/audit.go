package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// AuditRepository appends immutable transition records. There is no update
// or delete path on purpose.
type AuditRepository interface {
	Append(ctx context.Context, e model.AuditEntry) error
}

type AuditRepositoryImpl struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepositoryImpl {
	return &AuditRepositoryImpl{db: db}
}

var _ AuditRepository = (*AuditRepositoryImpl)(nil)

func (r *AuditRepositoryImpl) Append(ctx context.Context, e model.AuditEntry) error {
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		return r.AppendTx(ctx, tx, e)
	})
}

// AppendTx inserts within a caller-owned transaction.
func (r *AuditRepositoryImpl) AppendTx(ctx context.Context, tx *sqlx.Tx, e model.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries
		    (connection_id, resource_type, remote_id, previous_status, new_status,
		     executor_app, executor_user, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`, e.ConnectionID, e.ResourceType.String(), e.RemoteID, e.PreviousStatus, e.NewStatus,
		e.ExecutorApp, e.ExecutorUser, e.Evidence)
	return err
}
