package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/marketgate/mp-gateway/internal/lock"
	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/remote"
)

type queueFixture struct {
	queue    *Queue
	jobs     *fakeJobs
	cursors  *fakeCursors
	locker   *lock.MemoryLocker
	commands *fakeCommands
}

func newQueueFixture(t *testing.T, rem *fakeRemote, workers, queueSize int) *queueFixture {
	t.Helper()
	conns := newFakeConns(testConnection())
	jobs := newFakeJobs()
	cursors := &fakeCursors{}
	commands := newFakeCommands()
	locker := lock.NewMemoryLocker()

	syncH := newSyncHandler(conns, newFakeEntities(), cursors, &fakeAudit{}, rem, 10)
	cmdH := newCommandHandler(conns, commands, rem)

	return &queueFixture{
		queue:    NewQueue(jobs, cursors, locker, syncH, cmdH, workers, queueSize, time.Minute, nil),
		jobs:     jobs,
		cursors:  cursors,
		locker:   locker,
		commands: commands,
	}
}

func waitForTerminal(t *testing.T, jobs *fakeJobs, id string) model.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		j := jobs.get(id)
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return model.Job{}
}

func TestQueueRunsSyncJobToSuccess(t *testing.T) {
	rem := &fakeRemote{
		listFn: func(_ int, _ model.ResourceType, _, _ int) (remote.Response, error) {
			return orderPage(1, "o-1"), nil
		},
	}
	fx := newQueueFixture(t, rem, 2, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.queue.Start(ctx)

	id, err := fx.queue.Submit(ctx, 1, model.JobSyncOrders, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j := waitForTerminal(t, fx.jobs, id)
	if j.Status != model.JobSuccess {
		t.Fatalf("status = %q, error = %v", j.Status, j.Error)
	}
	if len(j.ResultSummary) == 0 {
		t.Fatal("missing result summary")
	}

	// Lock must be freed once the job finished; the release runs in a
	// deferred cleanup path, so allow it a moment.
	waitForLock(t, fx.locker, 1)
}

func waitForLock(t *testing.T, locker *lock.MemoryLocker, connectionID int64) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		lease, err := locker.Acquire(ctx, connectionID)
		if err == nil {
			_ = lease.Release(ctx)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("lock for connection %d never released", connectionID)
}

func TestQueueRunsCommandJob(t *testing.T) {
	rem := &fakeRemote{
		execFn: func(_ int, cmd model.CommandType, _ string, _ []byte) (remote.Response, error) {
			if cmd != model.CommandApproveClaim {
				t.Fatalf("unexpected command %q", cmd)
			}
			return remote.Response{Status: http.StatusOK, Body: []byte(`{}`)}, nil
		},
	}
	fx := newQueueFixture(t, rem, 1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.queue.Start(ctx)

	payload := []byte(`{"target_id":"c-1","idempotency_key":"k-1","actor":"ops","payload":{"note":"ok"}}`)
	id, err := fx.queue.Submit(ctx, 1, model.JobPostApprove, payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j := waitForTerminal(t, fx.jobs, id)
	if j.Status != model.JobSuccess {
		t.Fatalf("status = %q, error = %v", j.Status, j.Error)
	}
	if len(fx.commands.completed) != 1 {
		t.Fatalf("entity updates = %d, want 1", len(fx.commands.completed))
	}
}

func TestQueueCommandFailureFailsJob(t *testing.T) {
	rem := &fakeRemote{
		execFn: func(int, model.CommandType, string, []byte) (remote.Response, error) {
			return remote.Response{Status: http.StatusForbidden, Body: []byte("nope")}, nil
		},
	}
	fx := newQueueFixture(t, rem, 1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.queue.Start(ctx)

	payload := []byte(`{"target_id":"c-1","idempotency_key":"k-2","actor":"ops"}`)
	id, err := fx.queue.Submit(ctx, 1, model.JobPostApprove, payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j := waitForTerminal(t, fx.jobs, id)
	if j.Status != model.JobFailed {
		t.Fatalf("status = %q, want failed", j.Status)
	}
	if j.Error == nil {
		t.Fatal("failed job missing error")
	}
}

func TestSubmitRejectsBusyConnection(t *testing.T) {
	fx := newQueueFixture(t, &fakeRemote{}, 1, 4)

	ctx := context.Background()
	lease, err := fx.locker.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release(ctx)

	_, err = fx.queue.Submit(ctx, 1, model.JobSyncOrders, nil)
	if !errors.Is(err, ErrConnectionBusy) {
		t.Fatalf("err = %v, want ErrConnectionBusy", err)
	}
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	fx := newQueueFixture(t, &fakeRemote{}, 1, 4)

	_, err := fx.queue.Submit(context.Background(), 1, model.JobType("SYNC_EVERYTHING"), nil)
	if !errors.Is(err, ErrUnknownJobType) {
		t.Fatalf("err = %v, want ErrUnknownJobType", err)
	}
}

func TestSubmitQueueFullMarksJobFailed(t *testing.T) {
	// No workers started: the buffered channel fills and the next submission
	// must be rejected with its lock released and the job row failed.
	fx := newQueueFixture(t, &fakeRemote{}, 1, 1)

	ctx := context.Background()
	if _, err := fx.queue.Submit(ctx, 1, model.JobSyncOrders, nil); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// A second connection contends for queue space, not the lock.
	id, err := fx.queue.Submit(ctx, 2, model.JobSyncOrders, nil)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v (id=%q), want ErrQueueFull", err, id)
	}

	// The rejected connection's lock must be free again.
	lease, err := fx.locker.Acquire(ctx, 2)
	if err != nil {
		t.Fatalf("lock leaked on queue-full rejection: %v", err)
	}
	_ = lease.Release(ctx)

	last, err := fx.jobs.LastByConnection(ctx, 2)
	if err != nil || last == nil {
		t.Fatalf("LastByConnection: %v %v", last, err)
	}
	if last.Status != model.JobFailed {
		t.Fatalf("rejected job status = %q, want failed", last.Status)
	}
}

// countingLocker records lease refreshes and releases so tests can observe
// the heartbeat that keeps a lease alive past its TTL.
type countingLocker struct {
	mu    sync.Mutex
	lease *countingLease
}

func (l *countingLocker) Acquire(context.Context, int64) (lock.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lease = &countingLease{}
	return l.lease, nil
}

type countingLease struct {
	mu        sync.Mutex
	refreshes int
	released  bool
}

func (c *countingLease) Release(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

func (c *countingLease) Refresh(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return nil
}

func (c *countingLease) snapshot() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes, c.released
}

func TestQueueRefreshesLeaseDuringLongJob(t *testing.T) {
	rem := &fakeRemote{
		listFn: func(int, model.ResourceType, int, int) (remote.Response, error) {
			time.Sleep(60 * time.Millisecond)
			return orderPage(1, "o-1"), nil
		},
	}
	conns := newFakeConns(testConnection())
	jobs := newFakeJobs()
	locker := &countingLocker{}
	syncH := newSyncHandler(conns, newFakeEntities(), &fakeCursors{}, &fakeAudit{}, rem, 10)
	cmdH := newCommandHandler(conns, newFakeCommands(), rem)
	q := NewQueue(jobs, &fakeCursors{}, locker, syncH, cmdH, 1, 4, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	id, err := q.Submit(ctx, 1, model.JobSyncOrders, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, jobs, id)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		refreshes, released := locker.lease.snapshot()
		if released {
			if refreshes == 0 {
				t.Fatal("lease was never refreshed during a job slower than the refresh interval")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("lease never released")
}

func TestWaitFailsJobsStrandedAtShutdown(t *testing.T) {
	// Workers never started: submissions stay buffered, mirroring a shutdown
	// that cancels the pool with tasks still parked in the channel.
	fx := newQueueFixture(t, &fakeRemote{}, 1, 2)

	ctx := context.Background()
	id1, err := fx.queue.Submit(ctx, 1, model.JobSyncOrders, nil)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	id2, err := fx.queue.Submit(ctx, 2, model.JobSyncProducts, nil)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	fx.queue.Wait()

	for _, id := range []string{id1, id2} {
		j := fx.jobs.get(id)
		if j.Status != model.JobFailed {
			t.Fatalf("job %s status = %q, want failed", id, j.Status)
		}
		if j.Error == nil {
			t.Fatalf("job %s missing error", id)
		}
	}

	// Both connection locks must be free again.
	for _, conn := range []int64{1, 2} {
		lease, err := fx.locker.Acquire(ctx, conn)
		if err != nil {
			t.Fatalf("lock leaked for connection %d: %v", conn, err)
		}
		_ = lease.Release(ctx)
	}
}

func TestStatusReturnsCursorsAndLastJob(t *testing.T) {
	rem := &fakeRemote{
		listFn: func(_ int, _ model.ResourceType, _, _ int) (remote.Response, error) {
			return orderPage(1, "o-1"), nil
		},
	}
	fx := newQueueFixture(t, rem, 1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.queue.Start(ctx)

	id, err := fx.queue.Submit(ctx, 1, model.JobSyncOrders, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, fx.jobs, id)

	st, err := fx.queue.Status(ctx, 1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LastJob == nil || st.LastJob.ID != id {
		t.Fatalf("last job = %+v", st.LastJob)
	}
	if len(st.Cursors) == 0 || st.Cursors[0].LastStatus != model.CursorSuccess {
		t.Fatalf("cursors = %+v", st.Cursors)
	}
}
