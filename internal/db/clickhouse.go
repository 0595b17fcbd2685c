package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the reporting read connection.
// DSN example: clickhouse://default:@localhost:9000/mpgw?dial_timeout=5s&compress=true
func NewClickHouseConnection(dsn string, opts PoolOpts) (*sqlx.DB, error) {
	db, err := sqlx.Open("clickhouse", dsn)
	if err != nil {
		return nil, err
	}
	applyPool(db, opts)
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	if err := pingWithin(db, opts.PingTimeout); err != nil {
		return nil, err
	}
	return db, nil
}
