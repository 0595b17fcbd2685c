package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/marketgate/mp-gateway/internal/model"
)

// JobsRepository persists the jobs table. Status moves only forward
// (queued -> running -> {success|failed}); the UPDATE guards are derived from
// the transition table in internal/model.
type JobsRepository interface {
	Create(ctx context.Context, j *model.Job) error
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Finish(ctx context.Context, id string, status model.JobStatus, summary []byte, errMsg string, at time.Time) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	LastByConnection(ctx context.Context, connectionID int64) (*model.Job, error)
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type JobsRepositoryImpl struct {
	db *sqlx.DB
}

func NewJobsRepository(db *sqlx.DB) *JobsRepositoryImpl {
	return &JobsRepositoryImpl{db: db}
}

var _ JobsRepository = (*JobsRepositoryImpl)(nil)

func (r *JobsRepositoryImpl) Create(ctx context.Context, j *model.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, connection_id, type, status, payload, created_at)
		VALUES (?, ?, ?, 'queued', ?, NOW())
	`, j.ID, j.ConnectionID, j.Type.String(), j.Payload)
	return err
}

func (r *JobsRepositoryImpl) MarkRunning(ctx context.Context, id string, at time.Time) error {
	query, args, err := sqlx.In(`
		UPDATE jobs SET status = 'running', started_at = ?
		 WHERE id = ? AND status IN (?)
	`, at, id, transitionSources(model.JobRunning))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireTransition(res, id, model.JobRunning)
}

func (r *JobsRepositoryImpl) Finish(ctx context.Context, id string, status model.JobStatus, summary []byte, errMsg string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s: %q is not terminal", id, status)
	}
	var errCol *string
	if errMsg != "" {
		errCol = &errMsg
	}
	query, args, err := sqlx.In(`
		UPDATE jobs SET status = ?, result_summary = ?, error = ?, finished_at = ?
		 WHERE id = ? AND status IN (?)
	`, status.String(), summary, errCol, at, id, transitionSources(status))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireTransition(res, id, status)
}

// transitionSources renders the model transition table as an UPDATE status
// guard: only rows in one of the returned statuses may move to `to`.
func transitionSources(to model.JobStatus) []string {
	sources := model.TransitionSources(to)
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.String())
	}
	return out
}

func requireTransition(res sql.Result, id string, to model.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: illegal transition to %s", id, to)
	}
	return nil
}

const jobColumns = `
	id, connection_id, type, status, payload, result_summary, error,
	created_at, started_at, finished_at
`

func (r *JobsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := r.db.GetContext(ctx, &j, `
		SELECT `+jobColumns+` FROM jobs WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobsRepositoryImpl) LastByConnection(ctx context.Context, connectionID int64) (*model.Job, error) {
	var j model.Job
	err := r.db.GetContext(ctx, &j, `
		SELECT `+jobColumns+`
		  FROM jobs
		 WHERE connection_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1
	`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// SweepStale converts abandoned jobs to `failed` once they exceed the
// staleness window: `running` rows whose worker died mid-job, and `queued`
// rows stranded in the submission buffer by a crash before dispatch.
func (r *JobsRepositoryImpl) SweepStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'failed',
		       error = IF(status = 'running',
		                  'abandoned: worker terminated mid-job',
		                  'abandoned: never dispatched'),
		       finished_at = NOW()
		 WHERE (status = 'running' AND started_at < ?)
		    OR (status = 'queued' AND created_at < ?)
	`, olderThan, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
