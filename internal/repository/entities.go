package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// EntitiesRepository upserts mirrored remote resources by their composite
// natural key. A byte-identical raw payload (same raw_hash) is a no-op: no
// UPDATE, no touched updated_at, no audit downstream.
type EntitiesRepository interface {
	Upsert(ctx context.Context, e *model.Entity) (model.EntityChange, error)
	// GetByRef resolves an entity by local primary key first, falling back to
	// the remote identifier. List and detail paths therefore agree even when
	// the remote's own detail lookup is inconsistent.
	GetByRef(ctx context.Context, connectionID int64, ref string) (*model.Entity, error)
	ListByResource(ctx context.Context, connectionID int64, resource model.ResourceType, limit, offset int) ([]model.Entity, error)
	CountByResource(ctx context.Context, connectionID int64, resource model.ResourceType) (int64, error)
}

type EntitiesRepositoryImpl struct {
	db *sqlx.DB
}

func NewEntitiesRepository(db *sqlx.DB) *EntitiesRepositoryImpl {
	return &EntitiesRepositoryImpl{db: db}
}

var _ EntitiesRepository = (*EntitiesRepositoryImpl)(nil)

const entityColumns = `
	id, connection_id, marketplace, resource_type, remote_id,
	status, title, amount, raw, raw_hash, created_at, updated_at
`

func (r *EntitiesRepositoryImpl) Upsert(ctx context.Context, e *model.Entity) (model.EntityChange, error) {
	var change model.EntityChange
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var cur struct {
			ID      string `db:"id"`
			Status  string `db:"status"`
			RawHash string `db:"raw_hash"`
		}
		err := tx.GetContext(ctx, &cur, `
			SELECT id, status, raw_hash FROM entities
			 WHERE connection_id = ? AND marketplace = ? AND resource_type = ? AND remote_id = ?
			 FOR UPDATE
		`, e.ConnectionID, e.Marketplace, e.ResourceType.String(), e.RemoteID)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entities
				    (id, connection_id, marketplace, resource_type, remote_id,
				     status, title, amount, raw, raw_hash, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
			`, e.ID, e.ConnectionID, e.Marketplace, e.ResourceType.String(), e.RemoteID,
				e.Status, e.Title, e.Amount, e.Raw, e.RawHash)
			if err != nil {
				return err
			}
			change = model.EntityChange{Created: true, StatusChanged: e.Status != "", PreviousStatus: ""}
			return nil

		case err != nil:
			return err
		}

		if cur.RawHash == e.RawHash {
			change = model.EntityChange{Unchanged: true, PreviousStatus: cur.Status}
			e.ID = cur.ID
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE entities
			   SET status = ?, title = ?, amount = ?, raw = ?, raw_hash = ?, updated_at = NOW()
			 WHERE id = ?
		`, e.Status, e.Title, e.Amount, e.Raw, e.RawHash, cur.ID)
		if err != nil {
			return err
		}
		e.ID = cur.ID
		change = model.EntityChange{StatusChanged: cur.Status != e.Status, PreviousStatus: cur.Status}
		return nil
	})
	return change, err
}

// UpdateStatusTx applies a command-caused projected status change inside a
// caller-owned transaction (see CommandsRepository.CompleteSuccess).
func (r *EntitiesRepositoryImpl) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, u model.EntityStatusUpdate) (previous string, err error) {
	err = tx.QueryRowxContext(ctx, `
		SELECT status FROM entities
		 WHERE connection_id = ? AND resource_type = ? AND remote_id = ?
		 FOR UPDATE
	`, u.ConnectionID, u.ResourceType.String(), u.RemoteID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		// Entity not mirrored yet; the next sync pass will pick it up.
		return "", nil
	}
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET status = ?, updated_at = NOW()
		 WHERE connection_id = ? AND resource_type = ? AND remote_id = ?
	`, u.NewStatus, u.ConnectionID, u.ResourceType.String(), u.RemoteID)
	return previous, err
}

func (r *EntitiesRepositoryImpl) GetByRef(ctx context.Context, connectionID int64, ref string) (*model.Entity, error) {
	var e model.Entity
	err := r.db.GetContext(ctx, &e, `
		SELECT `+entityColumns+` FROM entities
		 WHERE connection_id = ? AND id = ? LIMIT 1
	`, connectionID, ref)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.GetContext(ctx, &e, `
			SELECT `+entityColumns+` FROM entities
			 WHERE connection_id = ? AND remote_id = ?
			 ORDER BY updated_at DESC LIMIT 1
		`, connectionID, ref)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntitiesRepositoryImpl) ListByResource(ctx context.Context, connectionID int64, resource model.ResourceType, limit, offset int) ([]model.Entity, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var list []model.Entity
	err := r.db.SelectContext(ctx, &list, `
		SELECT `+entityColumns+` FROM entities
		 WHERE connection_id = ? AND resource_type = ?
		 ORDER BY updated_at DESC
		 LIMIT ? OFFSET ?
	`, connectionID, resource.String(), limit, offset)
	return list, err
}

func (r *EntitiesRepositoryImpl) CountByResource(ctx context.Context, connectionID int64, resource model.ResourceType) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM entities WHERE connection_id = ? AND resource_type = ?
	`, connectionID, resource.String())
	return n, err
}
