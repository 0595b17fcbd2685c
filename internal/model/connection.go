package model

import "time"

type WebhookAuthKind string

const (
	WebhookAuthAPIKey WebhookAuthKind = "api_key"
	WebhookAuthBasic  WebhookAuthKind = "basic"
)

// Connection is one configured credential/endpoint binding to a remote
// marketplace account. Owned by the routing/admin layer; read-only here.
type Connection struct {
	ID              int64           `db:"id"`
	Name            string          `db:"name"`
	Marketplace     string          `db:"marketplace"`
	BaseURL         string          `db:"base_url"`
	APIKey          string          `db:"api_key"`
	WebhookAuthKind WebhookAuthKind `db:"webhook_auth_kind"`
	WebhookSecret   string          `db:"webhook_secret"`
	Status          string          `db:"status"`         // active|suspended
	RateLimitRPS    *int            `db:"rate_limit_rps"` // nullable
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}
