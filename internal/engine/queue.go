package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/lock"
	"github.com/marketgate/mp-gateway/internal/metrics"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/util"
)

var (
	// ErrConnectionBusy: another job holds the connection lock. Rejected
	// synchronously so backpressure stays visible to the caller instead of
	// hiding inside the system; resubmit later.
	ErrConnectionBusy = errors.New("another job is running for this connection")
	ErrQueueFull      = errors.New("job queue is full")
	ErrUnknownJobType = errors.New("unknown job type")
)

// CommandPayload is the request payload of PUSH_*/POST_* jobs.
type CommandPayload struct {
	TargetID       string          `json:"target_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Actor          string          `json:"actor"`
	Payload        json.RawMessage `json:"payload"`
}

// CommandSummary is the terminal result summary of a command-backed job. It
// carries the command identifier so callers can poll follow-up state without
// re-deriving it.
type CommandSummary struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Replayed  bool   `json:"replayed"`
	Error     string `json:"error,omitempty"`
}

// ConnectionStatus is the polling view: every cursor plus the latest job.
type ConnectionStatus struct {
	Cursors []model.SyncCursor `json:"cursors"`
	LastJob *model.Job         `json:"last_job"`
}

type task struct {
	job   model.Job
	lease lock.Lease
}

// Queue owns the job lifecycle: create row, acquire connection lock,
// dispatch to a handler on a fixed-size worker pool, record the terminal
// outcome, release the lock. One job runs on one worker for its full
// lifetime; jobs for different connections run concurrently without
// restriction.
type Queue struct {
	jobs     JobStore
	cursors  CursorStore
	locker   lock.Locker
	syncer   *SyncHandler
	commands *CommandHandler

	tasks       chan task
	workers     int
	lockRefresh time.Duration
	wg          sync.WaitGroup
	log         *zap.Logger
}

func NewQueue(jobs JobStore, cursors CursorStore, locker lock.Locker,
	syncH *SyncHandler, cmdH *CommandHandler, workers, queueSize int,
	lockRefresh time.Duration, log *zap.Logger) *Queue {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if lockRefresh <= 0 {
		lockRefresh = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		jobs:        jobs,
		cursors:     cursors,
		locker:      locker,
		syncer:      syncH,
		commands:    cmdH,
		tasks:       make(chan task, queueSize),
		workers:     workers,
		lockRefresh: lockRefresh,
		log:         log,
	}
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-q.tasks:
					q.execute(ctx, t)
				}
			}
		}()
	}
}

// Wait blocks until every worker has returned, then fails the jobs still
// buffered at shutdown so no row is stranded in `queued`: the stale-job sweep
// only covers workers that died without reaching this path.
func (q *Queue) Wait() {
	q.wg.Wait()
	for {
		select {
		case t := <-q.tasks:
			ctx := context.Background()
			_ = t.lease.Release(ctx)
			if err := q.jobs.Finish(ctx, t.job.ID, model.JobFailed, nil, "shutdown before dispatch", time.Now()); err != nil {
				q.log.Error("fail undispatched job", zap.String("job_id", t.job.ID), zap.Error(err))
			}
			metrics.JobsTotal.WithLabelValues(t.job.Type.String(), "rejected").Inc()
		default:
			return
		}
	}
}

// Submit accepts one unit of work. The connection lock is taken here, before
// the job row exists, so a busy connection is a synchronous rejection and
// never a silently parked job.
func (q *Queue) Submit(ctx context.Context, connectionID int64, jt model.JobType, payload []byte) (string, error) {
	if !jt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, jt)
	}

	lease, err := q.locker.Acquire(ctx, connectionID)
	if errors.Is(err, lock.ErrBusy) {
		metrics.JobsTotal.WithLabelValues(jt.String(), "rejected").Inc()
		return "", ErrConnectionBusy
	}
	if err != nil {
		return "", fmt.Errorf("acquire connection lock: %w", err)
	}

	job := model.Job{
		ID:           util.NewID(),
		ConnectionID: connectionID,
		Type:         jt,
		Status:       model.JobQueued,
		Payload:      payload,
	}
	if err := q.jobs.Create(ctx, &job); err != nil {
		_ = lease.Release(ctx)
		return "", fmt.Errorf("create job: %w", err)
	}

	select {
	case q.tasks <- task{job: job, lease: lease}:
		return job.ID, nil
	default:
		_ = lease.Release(ctx)
		_ = q.jobs.Finish(ctx, job.ID, model.JobFailed, nil, ErrQueueFull.Error(), time.Now())
		metrics.JobsTotal.WithLabelValues(jt.String(), "rejected").Inc()
		return "", ErrQueueFull
	}
}

// Status implements the polling contract.
func (q *Queue) Status(ctx context.Context, connectionID int64) (*ConnectionStatus, error) {
	cursors, err := q.cursors.ListByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	last, err := q.jobs.LastByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return &ConnectionStatus{Cursors: cursors, LastJob: last}, nil
}

func (q *Queue) execute(ctx context.Context, t task) {
	defer func() {
		if err := t.lease.Release(ctx); err != nil {
			q.log.Warn("lock release failed",
				zap.Int64("connection_id", t.job.ConnectionID), zap.Error(err))
		}
	}()

	// Heartbeat keeps the lease alive for jobs slower than the lock TTL
	// (paginated syncs against a degraded remote can run for a long time).
	// Stopped before the deferred release above runs.
	heartbeatStop := make(chan struct{})
	defer close(heartbeatStop)
	go q.keepLeaseAlive(ctx, t, heartbeatStop)

	if err := q.jobs.MarkRunning(ctx, t.job.ID, time.Now()); err != nil {
		q.log.Error("mark running failed", zap.String("job_id", t.job.ID), zap.Error(err))
		return
	}

	summary, outcome, err := q.dispatch(ctx, &t.job)
	if err != nil {
		metrics.JobsTotal.WithLabelValues(t.job.Type.String(), "failed").Inc()
		if ferr := q.jobs.Finish(ctx, t.job.ID, model.JobFailed, nil, err.Error(), time.Now()); ferr != nil {
			q.log.Error("finish failed-job", zap.String("job_id", t.job.ID), zap.Error(ferr))
		}
		q.log.Warn("job failed",
			zap.String("job_id", t.job.ID),
			zap.String("type", t.job.Type.String()),
			zap.Int64("connection_id", t.job.ConnectionID),
			zap.Error(err))
		return
	}

	raw, merr := json.Marshal(summary)
	if merr != nil {
		q.log.Error("result summary marshal failed; job recorded without one",
			zap.String("job_id", t.job.ID),
			zap.String("type", t.job.Type.String()),
			zap.Error(merr))
		raw = nil
	}
	metrics.JobsTotal.WithLabelValues(t.job.Type.String(), outcome).Inc()
	if ferr := q.jobs.Finish(ctx, t.job.ID, model.JobSuccess, raw, "", time.Now()); ferr != nil {
		q.log.Error("finish job", zap.String("job_id", t.job.ID), zap.Error(ferr))
	}
}

func (q *Queue) keepLeaseAlive(ctx context.Context, t task, stop <-chan struct{}) {
	tick := time.NewTicker(q.lockRefresh)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := t.lease.Refresh(ctx); err != nil {
				q.log.Error("connection lease refresh failed",
					zap.String("job_id", t.job.ID),
					zap.Int64("connection_id", t.job.ConnectionID),
					zap.Error(err))
				return
			}
		}
	}
}

// dispatch routes a running job to its handler and reduces the result to a
// summary plus a metrics outcome label.
func (q *Queue) dispatch(ctx context.Context, job *model.Job) (any, string, error) {
	if resource, ok := job.Type.Resource(); ok {
		s, err := q.syncer.Run(ctx, job, resource)
		if err != nil {
			return nil, "", err
		}
		return s, s.Outcome, nil
	}

	cmdType, ok := job.Type.Command()
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownJobType, job.Type)
	}

	var p CommandPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, "", fmt.Errorf("decode command payload: %w", err)
	}

	cmd, replayed, err := q.commands.Execute(ctx, CommandRequest{
		ConnectionID:   job.ConnectionID,
		Type:           cmdType,
		TargetID:       p.TargetID,
		IdempotencyKey: p.IdempotencyKey,
		Actor:          p.Actor,
		Payload:        p.Payload,
	})
	if err != nil {
		return nil, "", err
	}
	if cmd.Status == model.CommandFailed {
		msg := "command failed"
		if cmd.Error != nil {
			msg = *cmd.Error
		}
		return nil, "", fmt.Errorf("command %s: %s", cmd.ID, msg)
	}

	s := CommandSummary{CommandID: cmd.ID, Status: cmd.Status.String(), Replayed: replayed}
	return s, OutcomeComplete, nil
}
