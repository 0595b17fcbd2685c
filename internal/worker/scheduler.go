package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/engine"
	"github.com/marketgate/mp-gateway/internal/model"
)

// ConnectionLister is satisfied by ConnectionsRepository.
type ConnectionLister interface {
	ListActive(ctx context.Context) ([]model.Connection, error)
}

// Scheduler periodically submits SYNC_* jobs for every active connection.
// Busy connections are simply skipped; the next tick retries.
type Scheduler struct {
	Conns     ConnectionLister
	Queue     Submitter
	Interval  time.Duration
	Resources []model.ResourceType
	Log       *zap.Logger
}

func NewScheduler(conns ConnectionLister, queue Submitter, interval time.Duration,
	resources []model.ResourceType, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if len(resources) == 0 {
		resources = model.AllResourceTypes()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{Conns: conns, Queue: queue, Interval: interval, Resources: resources, Log: log}
}

// Run blocks until ctx is cancelled. The first tick fires immediately so a
// fresh deployment does not wait a full interval before syncing anything.
func (s *Scheduler) Run(ctx context.Context) error {
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	conns, err := s.Conns.ListActive(ctx)
	if err != nil {
		s.Log.Error("list active connections", zap.Error(err))
		return
	}

	var submitted, skipped int
	for _, conn := range conns {
		for _, resource := range s.Resources {
			jt, ok := model.SyncJobType(resource)
			if !ok {
				continue
			}
			_, err := s.Queue.Submit(ctx, conn.ID, jt, nil)
			switch {
			case errors.Is(err, engine.ErrConnectionBusy):
				// One job per connection: the rest of this connection's
				// resources wait for the next tick.
				skipped++
			case errors.Is(err, engine.ErrQueueFull):
				s.Log.Warn("queue full, scheduler tick truncated",
					zap.Int("submitted", submitted))
				return
			case err != nil:
				s.Log.Error("scheduled submit failed",
					zap.Int64("connection_id", conn.ID),
					zap.String("type", jt.String()),
					zap.Error(err))
			default:
				submitted++
			}
			if errors.Is(err, engine.ErrConnectionBusy) {
				break
			}
		}
	}

	s.Log.Info("scheduler tick",
		zap.Int("connections", len(conns)),
		zap.Int("submitted", submitted),
		zap.Int("skipped_busy", skipped))
}
