// Package webhook ingests marketplace event deliveries. Providers retry
// aggressively and redeliver on any non-2xx, so the processor is built to be
// lock-free and idempotent: verification first, then a single keyed insert
// that either accepts the delivery or counts it as a duplicate.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/metrics"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/util"
)

var (
	// ErrVerifyFailed: the delivery's credentials did not match the
	// connection's configured webhook auth. The row is still recorded for
	// forensics, outside the dedup space.
	ErrVerifyFailed = errors.New("webhook verification failed")
	ErrBadPayload   = errors.New("webhook payload missing event_type or resource_id")
)

// EventStore is the persistence contract; WebhooksRepository satisfies it.
type EventStore interface {
	RecordDelivery(ctx context.Context, ev model.WebhookEvent, topic string, envelope []byte) (dedupHit bool, err error)
	RecordRejected(ctx context.Context, ev model.WebhookEvent) error
}

// Credentials are the auth material the transport presented with a delivery.
type Credentials struct {
	APIKey    string
	BasicUser string
	BasicPass string
}

type Result struct {
	DeliveryID string
	DedupHit   bool
}

// Processor verifies, fingerprints and records inbound deliveries. The first
// delivery of an event key also produces the outbox envelope that downstream
// workers consume; duplicates only bump a counter and have no further effect.
type Processor struct {
	events EventStore
	topic  string
	log    *zap.Logger
}

func NewProcessor(events EventStore, topic string, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{events: events, topic: topic, log: log}
}

type inboundPayload struct {
	EventType  string `json:"event_type"`
	ResourceID string `json:"resource_id"`
}

// Process handles one delivery for a connection. A verification failure
// returns ErrVerifyFailed after recording the rejected row; everything past
// verification is answered as accepted, with DedupHit telling first delivery
// from redelivery apart.
func (p *Processor) Process(ctx context.Context, conn *model.Connection, creds Credentials, body []byte) (*Result, error) {
	var payload inboundPayload
	_ = json.Unmarshal(body, &payload) // best effort before verification; checked after

	if !verify(conn, creds) {
		metrics.WebhookDeliveriesTotal.WithLabelValues("rejected").Inc()
		ev := model.WebhookEvent{
			ID:           util.NewID(),
			ConnectionID: conn.ID,
			EventType:    payload.EventType,
			RemoteID:     payload.ResourceID,
			BodyHash:     util.BodyHash(body),
			VerifyStatus: model.VerifyFailed,
			ReceivedAt:   time.Now(),
		}
		if err := p.events.RecordRejected(ctx, ev); err != nil {
			p.log.Error("record rejected delivery",
				zap.Int64("connection_id", conn.ID), zap.Error(err))
		}
		return nil, ErrVerifyFailed
	}

	if payload.EventType == "" || payload.ResourceID == "" {
		return nil, ErrBadPayload
	}

	bodyHash := util.BodyHash(body)
	key := util.EventKey(payload.EventType, payload.ResourceID, bodyHash)

	ev := model.WebhookEvent{
		ID:           util.NewID(),
		ConnectionID: conn.ID,
		EventKey:     &key,
		EventType:    payload.EventType,
		RemoteID:     payload.ResourceID,
		BodyHash:     bodyHash,
		VerifyStatus: model.VerifyOK,
		ReceivedAt:   time.Now(),
	}

	envelope, err := json.Marshal(model.EventEnvelope{
		DeliveryID:   ev.ID,
		ConnectionID: conn.ID,
		EventType:    payload.EventType,
		RemoteID:     payload.ResourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	dedupHit, err := p.events.RecordDelivery(ctx, ev, p.topic, envelope)
	if err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}

	outcome := "accepted"
	if dedupHit {
		outcome = "duplicate"
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()

	return &Result{DeliveryID: ev.ID, DedupHit: dedupHit}, nil
}

// verify checks the presented credentials against the connection's configured
// webhook auth. Comparisons are constant-time.
func verify(conn *model.Connection, creds Credentials) bool {
	switch conn.WebhookAuthKind {
	case model.WebhookAuthAPIKey:
		return equal(creds.APIKey, conn.WebhookSecret)
	case model.WebhookAuthBasic:
		return equal(creds.BasicUser+":"+creds.BasicPass, conn.WebhookSecret)
	default:
		return false
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
