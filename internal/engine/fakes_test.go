package engine

import (
	"context"
	"sync"
	"time"

	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/remote"
)

func noSleep(context.Context, time.Duration) error { return nil }

type fakeConns struct {
	conns map[int64]*model.Connection
}

func newFakeConns(conns ...*model.Connection) *fakeConns {
	f := &fakeConns{conns: make(map[int64]*model.Connection)}
	for _, c := range conns {
		f.conns[c.ID] = c
	}
	return f
}

func (f *fakeConns) GetByID(_ context.Context, id int64) (*model.Connection, error) {
	return f.conns[id], nil
}

type fakeJobs struct {
	mu   sync.Mutex
	rows map[string]*model.Job
}

func newFakeJobs() *fakeJobs { return &fakeJobs{rows: make(map[string]*model.Job)} }

func (f *fakeJobs) Create(_ context.Context, j *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	cp.CreatedAt = time.Now()
	f.rows[j.ID] = &cp
	return nil
}

func (f *fakeJobs) MarkRunning(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.rows[id]
	j.Status = model.JobRunning
	j.StartedAt = &at
	return nil
}

func (f *fakeJobs) Finish(_ context.Context, id string, status model.JobStatus, summary []byte, errMsg string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.rows[id]
	j.Status = status
	j.ResultSummary = summary
	if errMsg != "" {
		j.Error = &errMsg
	}
	j.FinishedAt = &at
	return nil
}

func (f *fakeJobs) LastByConnection(_ context.Context, connectionID int64) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *model.Job
	for _, j := range f.rows {
		if j.ConnectionID != connectionID {
			continue
		}
		if last == nil || j.CreatedAt.After(last.CreatedAt) {
			last = j
		}
	}
	return last, nil
}

func (f *fakeJobs) get(id string) model.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

type cursorRecord struct {
	Resource model.ResourceType
	Status   model.CursorStatus
	JobID    string
	ErrMsg   string
	At       time.Time
}

type fakeCursors struct {
	mu      sync.Mutex
	records []cursorRecord
}

func (f *fakeCursors) Record(_ context.Context, _ int64, resource model.ResourceType,
	status model.CursorStatus, jobID string, errMsg string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, cursorRecord{resource, status, jobID, errMsg, at})
	return nil
}

func (f *fakeCursors) ListByConnection(_ context.Context, connectionID int64) ([]model.SyncCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SyncCursor, 0, len(f.records))
	for _, r := range f.records {
		at := r.At
		out = append(out, model.SyncCursor{
			ConnectionID:  connectionID,
			ResourceType:  r.Resource,
			LastStatus:    r.Status,
			LastJobID:     r.JobID,
			LastAttemptAt: &at,
		})
	}
	return out, nil
}

func (f *fakeCursors) last() cursorRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[len(f.records)-1]
}

type fakeEntities struct {
	mu      sync.Mutex
	changes map[string]model.EntityChange // keyed by remote id
	stored  []*model.Entity
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{changes: make(map[string]model.EntityChange)}
}

func (f *fakeEntities) Upsert(_ context.Context, e *model.Entity) (model.EntityChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, e)
	if ch, ok := f.changes[e.RemoteID]; ok {
		return ch, nil
	}
	return model.EntityChange{Created: true}, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (f *fakeAudit) Append(_ context.Context, e model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

type fakeCommands struct {
	mu   sync.Mutex
	rows map[string]*model.Command // keyed by idempotency key

	completed []*model.EntityStatusUpdate
	audited   []*model.AuditEntry
}

func newFakeCommands() *fakeCommands { return &fakeCommands{rows: make(map[string]*model.Command)} }

func (f *fakeCommands) GetByKey(_ context.Context, _ int64, key string) (*model.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.rows[key]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCommands) CreateRunning(_ context.Context, c *model.Command) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[c.IdempotencyKey]; ok {
		return false, nil
	}
	cp := *c
	f.rows[c.IdempotencyKey] = &cp
	return true, nil
}

func (f *fakeCommands) CompleteSuccess(_ context.Context, id string, response []byte,
	update *model.EntityStatusUpdate, audit *model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.ID == id {
			c.Status = model.CommandSuccess
			c.Response = response
		}
	}
	if update != nil {
		f.completed = append(f.completed, update)
	}
	if audit != nil {
		f.audited = append(f.audited, audit)
	}
	return nil
}

func (f *fakeCommands) Fail(_ context.Context, id string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.ID == id {
			c.Status = model.CommandFailed
			c.Error = &errMsg
		}
	}
	return nil
}

type fakeRemote struct {
	mu        sync.Mutex
	listCalls int
	execCalls int

	listFn func(call int, resource model.ResourceType, page, size int) (remote.Response, error)
	execFn func(call int, cmd model.CommandType, targetID string, payload []byte) (remote.Response, error)
}

func (f *fakeRemote) List(_ context.Context, _ *model.Connection, resource model.ResourceType, page, size int) (remote.Response, error) {
	f.mu.Lock()
	f.listCalls++
	n := f.listCalls
	f.mu.Unlock()
	return f.listFn(n, resource, page, size)
}

func (f *fakeRemote) Execute(_ context.Context, _ *model.Connection, cmd model.CommandType, targetID string, payload []byte) (remote.Response, error) {
	f.mu.Lock()
	f.execCalls++
	n := f.execCalls
	f.mu.Unlock()
	return f.execFn(n, cmd, targetID, payload)
}

func testConnection() *model.Connection {
	return &model.Connection{
		ID:          1,
		Name:        "acme",
		Marketplace: "acme-market",
		BaseURL:     "https://api.acme.test",
		APIKey:      "k-123",
		Status:      "active",
	}
}
