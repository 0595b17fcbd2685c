package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// CommandsRepository persists write actions under the
// (connection_id, idempotency_key) unique constraint. CompleteSuccess applies
// the command result, the entity projected status, and the audit row in one
// transaction so a crash can never record the side effect twice.
type CommandsRepository interface {
	GetByKey(ctx context.Context, connectionID int64, idempotencyKey string) (*model.Command, error)
	// CreateRunning inserts the row; created=false means another submission
	// with the same key won the race.
	CreateRunning(ctx context.Context, c *model.Command) (created bool, err error)
	CompleteSuccess(ctx context.Context, id string, response []byte,
		update *model.EntityStatusUpdate, audit *model.AuditEntry) error
	Fail(ctx context.Context, id string, errMsg string) error
}

type CommandsRepositoryImpl struct {
	db       *sqlx.DB
	entities *EntitiesRepositoryImpl
	audit    *AuditRepositoryImpl
}

func NewCommandsRepository(db *sqlx.DB, entities *EntitiesRepositoryImpl, audit *AuditRepositoryImpl) *CommandsRepositoryImpl {
	return &CommandsRepositoryImpl{db: db, entities: entities, audit: audit}
}

var _ CommandsRepository = (*CommandsRepositoryImpl)(nil)

const commandColumns = `
	id, connection_id, command_type, target_id, idempotency_key, status,
	actor, request, response, error, created_at, updated_at
`

func (r *CommandsRepositoryImpl) GetByKey(ctx context.Context, connectionID int64, idempotencyKey string) (*model.Command, error) {
	var c model.Command
	err := r.db.GetContext(ctx, &c, `
		SELECT `+commandColumns+` FROM commands
		 WHERE connection_id = ? AND idempotency_key = ? LIMIT 1
	`, connectionID, idempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CommandsRepositoryImpl) CreateRunning(ctx context.Context, c *model.Command) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO commands
		    (id, connection_id, command_type, target_id, idempotency_key,
		     status, actor, request, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'running', ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE id = id
	`, c.ID, c.ConnectionID, c.Type.String(), c.TargetID, c.IdempotencyKey, c.Actor, c.Request)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	// MySQL reports 1 for a fresh insert, 0 for the no-op duplicate path.
	return n == 1, nil
}

func (r *CommandsRepositoryImpl) CompleteSuccess(ctx context.Context, id string, response []byte,
	update *model.EntityStatusUpdate, audit *model.AuditEntry) error {
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE commands SET status = 'success', response = ?, error = NULL, updated_at = NOW()
			 WHERE id = ? AND status = 'running'
		`, response, id)
		if err != nil {
			return err
		}

		if update != nil {
			previous, err := r.entities.UpdateStatusTx(ctx, tx, *update)
			if err != nil {
				return err
			}
			if audit != nil {
				audit.PreviousStatus = previous
				if err := r.audit.AppendTx(ctx, tx, *audit); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *CommandsRepositoryImpl) Fail(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commands SET status = 'failed', error = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'running'
	`, errMsg, id)
	return err
}
