// Package worker holds the long-running background loops: the Kafka event
// consumer, the periodic sync scheduler and the stale-job sweeper.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/engine"
	"github.com/marketgate/mp-gateway/internal/kafka"
	"github.com/marketgate/mp-gateway/internal/model"
)

// Submitter is the queue surface the workers need.
type Submitter interface {
	Submit(ctx context.Context, connectionID int64, jt model.JobType, payload []byte) (string, error)
}

// EventsWorker turns accepted webhook envelopes into follow-up sync jobs: a
// marketplace telling us "order o-1 changed" triggers a SYNC_ORDERS run for
// that connection. Kafka delivery is at-least-once and submissions are cheap
// to drop: a busy connection is already syncing and the scheduler backstops
// anything missed, so every message is committed exactly once handled.
type EventsWorker struct {
	Consumer *kafka.Consumer
	Queue    Submitter
	Log      *zap.Logger
}

func NewEventsWorker(consumer *kafka.Consumer, queue Submitter, log *zap.Logger) *EventsWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsWorker{Consumer: consumer, Queue: queue, Log: log}
}

// Run blocks until ctx is cancelled.
func (w *EventsWorker) Run(ctx context.Context) error {
	for {
		m, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}
		w.processOne(ctx, m)
	}
}

func (w *EventsWorker) processOne(ctx context.Context, m kafka.Message) {
	defer func() {
		if err := w.Consumer.Commit(ctx, m); err != nil {
			w.Log.Warn("kafka commit failed", zap.Error(err))
		}
	}()

	var env model.EventEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.DeliveryID == "" {
		// poison message, skip
		w.Log.Warn("bad event envelope", zap.Error(err))
		return
	}

	resource, ok := EventResource(env.EventType)
	if !ok {
		w.Log.Warn("unroutable event type",
			zap.String("event_type", env.EventType),
			zap.String("delivery_id", env.DeliveryID))
		return
	}
	jt, _ := model.SyncJobType(resource)

	jobID, err := w.Queue.Submit(ctx, env.ConnectionID, jt, nil)
	switch {
	case errors.Is(err, engine.ErrConnectionBusy):
		// A sync is already running for this connection; it will pick the
		// change up or the scheduler will.
		return
	case errors.Is(err, engine.ErrQueueFull):
		w.Log.Warn("queue full, dropping event-triggered sync",
			zap.Int64("connection_id", env.ConnectionID),
			zap.String("type", jt.String()))
		return
	case err != nil:
		w.Log.Error("submit event-triggered sync",
			zap.Int64("connection_id", env.ConnectionID),
			zap.String("type", jt.String()),
			zap.Error(err))
		return
	}

	w.Log.Info("event-triggered sync submitted",
		zap.String("job_id", jobID),
		zap.Int64("connection_id", env.ConnectionID),
		zap.String("type", jt.String()),
		zap.String("delivery_id", env.DeliveryID))
}

// EventResource maps a provider event type ("order.updated",
// "claim.opened", ...) to the resource class whose sync it should trigger.
func EventResource(eventType string) (model.ResourceType, bool) {
	subject, _, _ := strings.Cut(eventType, ".")
	switch strings.ToLower(subject) {
	case "order":
		return model.ResourceOrders, true
	case "product":
		return model.ResourceProducts, true
	case "claim":
		return model.ResourceClaims, true
	case "question":
		return model.ResourceQuestions, true
	default:
		return "", false
	}
}
