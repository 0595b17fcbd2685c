package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

type ConnectionsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Connection, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Connection, error)
	ListActive(ctx context.Context) ([]model.Connection, error)
}

type ConnectionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewConnectionsRepository(db *sqlx.DB) *ConnectionsRepositoryImpl {
	return &ConnectionsRepositoryImpl{db: db}
}

var _ ConnectionsRepository = (*ConnectionsRepositoryImpl)(nil)

const connectionColumns = `
	id, name, marketplace, base_url, api_key, webhook_auth_kind,
	webhook_secret, status, rate_limit_rps, created_at, updated_at
`

func (r *ConnectionsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `
		SELECT `+connectionColumns+`
		  FROM connections
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `
		SELECT `+connectionColumns+`
		  FROM connections
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionsRepositoryImpl) ListActive(ctx context.Context) ([]model.Connection, error) {
	var list []model.Connection
	err := r.db.SelectContext(ctx, &list, `
		SELECT `+connectionColumns+`
		  FROM connections
		 WHERE status = 'active'
		 ORDER BY id
	`)
	return list, err
}
