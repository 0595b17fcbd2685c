package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleSweeper is satisfied by JobsRepository.
type StaleSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper fails jobs abandoned by a crashed process: `running` rows whose
// worker died before reaching a terminal state, and `queued` rows that never
// made it out of the submission buffer. Recovery after a crash is a fresh
// submission, never an in-place resume; the connection lock expired with its
// TTL, so the swept row is only bookkeeping.
type Sweeper struct {
	Jobs       StaleSweeper
	Interval   time.Duration
	StaleAfter time.Duration
	Log        *zap.Logger
}

func NewSweeper(jobs StaleSweeper, interval, staleAfter time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{Jobs: jobs, Interval: interval, StaleAfter: staleAfter, Log: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			n, err := s.Jobs.SweepStale(ctx, time.Now().Add(-s.StaleAfter))
			if err != nil {
				s.Log.Error("stale job sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.Log.Warn("swept abandoned jobs", zap.Int64("count", n))
			}
		}
	}
}
