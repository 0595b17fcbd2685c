package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/marketgate/mp-gateway/internal/config"
	"github.com/marketgate/mp-gateway/internal/db"
	"github.com/marketgate/mp-gateway/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo connections...")
		if err := seedConnections(sqlDB); err != nil {
			return err
		}
		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedConnections inserts deterministic demo connections (idempotent, keyed
// by the api_key unique constraint).
func seedConnections(dbx *sqlx.DB) error {
	connections := []model.Connection{
		{
			Name:            "Acme Store EU",
			Marketplace:     "acme-market",
			BaseURL:         "https://api.acme-market.test",
			APIKey:          "11111111111111111111111111111111",
			WebhookAuthKind: model.WebhookAuthAPIKey,
			WebhookSecret:   "hook-acme-eu",
			Status:          "active",
			RateLimitRPS:    intptr(20),
		},
		{
			Name:            "Acme Store US",
			Marketplace:     "acme-market",
			BaseURL:         "https://api.acme-market.test",
			APIKey:          "22222222222222222222222222222222",
			WebhookAuthKind: model.WebhookAuthBasic,
			WebhookSecret:   "hook:acme-us",
			Status:          "active",
			RateLimitRPS:    intptr(50),
		},
		{
			Name:            "Bazaar Outlet",
			Marketplace:     "bazaar",
			BaseURL:         "https://seller-api.bazaar.test",
			APIKey:          "33333333333333333333333333333333",
			WebhookAuthKind: model.WebhookAuthAPIKey,
			WebhookSecret:   "hook-bazaar",
			Status:          "active",
			RateLimitRPS:    intptr(5),
		},
		{
			Name:            "Suspended Shop",
			Marketplace:     "bazaar",
			BaseURL:         "https://seller-api.bazaar.test",
			APIKey:          "44444444444444444444444444444444",
			WebhookAuthKind: model.WebhookAuthAPIKey,
			WebhookSecret:   "hook-suspended",
			Status:          "suspended",
			RateLimitRPS:    nil,
		},
	}

	const q = `
INSERT INTO connections
    (name, marketplace, base_url, api_key, webhook_auth_kind, webhook_secret,
     status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name              = VALUES(name),
    marketplace       = VALUES(marketplace),
    base_url          = VALUES(base_url),
    webhook_auth_kind = VALUES(webhook_auth_kind),
    webhook_secret    = VALUES(webhook_secret),
    status            = VALUES(status),
    rate_limit_rps    = VALUES(rate_limit_rps),
    updated_at        = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, c := range connections {
		if _, err := tx.Exec(q, c.Name, c.Marketplace, c.BaseURL, c.APIKey,
			string(c.WebhookAuthKind), c.WebhookSecret, c.Status, c.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert connection %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit connections: %w", err)
	}
	return nil
}

func intptr(i int) *int { return &i }
