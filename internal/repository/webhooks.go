package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// WebhooksRepository stores inbound deliveries. Dedup relies solely on the
// event_key unique constraint: concurrent deliveries race on the INSERT and
// the loser becomes a counted duplicate, with no lock involved.
type WebhooksRepository interface {
	// RecordDelivery inserts the verified event and, when it is the first
	// delivery of its event key, the outbox envelope in the same transaction.
	// dedupHit=true means the key already existed; only its counter moved.
	RecordDelivery(ctx context.Context, ev model.WebhookEvent, topic string, envelope []byte) (dedupHit bool, err error)
	// RecordRejected stores a delivery that failed signature/credential
	// verification. It carries no event key and never enters dedup space.
	RecordRejected(ctx context.Context, ev model.WebhookEvent) error
}

type WebhooksRepositoryImpl struct {
	db     *sqlx.DB
	outbox OutboxRepository
}

func NewWebhooksRepository(db *sqlx.DB, outbox OutboxRepository) *WebhooksRepositoryImpl {
	return &WebhooksRepositoryImpl{db: db, outbox: outbox}
}

var _ WebhooksRepository = (*WebhooksRepositoryImpl)(nil)

func (r *WebhooksRepositoryImpl) RecordDelivery(ctx context.Context, ev model.WebhookEvent, topic string, envelope []byte) (bool, error) {
	var dedupHit bool
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO webhook_events
			    (id, connection_id, event_key, event_type, remote_id, body_hash,
			     verify_status, dedup_count, received_at)
			VALUES (?, ?, ?, ?, ?, ?, 'ok', 0, NOW())
			ON DUPLICATE KEY UPDATE dedup_count = dedup_count + 1
		`, ev.ID, ev.ConnectionID, ev.EventKey, ev.EventType, ev.RemoteID, ev.BodyHash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		// MySQL reports 1 for a fresh insert and 2 when the duplicate-key
		// update path ran.
		dedupHit = n == 2

		if dedupHit {
			return nil
		}
		return r.outbox.Insert(ctx, tx, model.OutboxEvent{
			Aggregate:   "webhook_event",
			AggregateID: ev.ID,
			Topic:       topic,
			Payload:     envelope,
		})
	})
	return dedupHit, err
}

func (r *WebhooksRepositoryImpl) RecordRejected(ctx context.Context, ev model.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events
		    (id, connection_id, event_key, event_type, remote_id, body_hash,
		     verify_status, dedup_count, received_at)
		VALUES (?, ?, NULL, ?, ?, ?, 'failed', 0, NOW())
	`, ev.ID, ev.ConnectionID, ev.EventType, ev.RemoteID, ev.BodyHash)
	return err
}
