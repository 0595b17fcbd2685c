package model

import (
	"strings"
	"time"
)

type JobType string

const (
	JobSyncOrders    JobType = "SYNC_ORDERS"
	JobSyncProducts  JobType = "SYNC_PRODUCTS"
	JobSyncClaims    JobType = "SYNC_CLAIMS"
	JobSyncQuestions JobType = "SYNC_QUESTIONS"
	JobPushInventory JobType = "PUSH_INVENTORY"
	JobPushPrice     JobType = "PUSH_PRICE"
	JobPostAnswer    JobType = "POST_ANSWER"
	JobPostApprove   JobType = "POST_APPROVE"
	JobPostReject    JobType = "POST_REJECT"
	JobPostTracking  JobType = "POST_TRACKING"
)

func (t JobType) String() string { return string(t) }

func (t JobType) Valid() bool {
	_, sync := t.Resource()
	_, cmd := t.Command()
	return sync || cmd
}

// Resource returns the synchronized resource class for SYNC_* job types.
func (t JobType) Resource() (ResourceType, bool) {
	switch t {
	case JobSyncOrders:
		return ResourceOrders, true
	case JobSyncProducts:
		return ResourceProducts, true
	case JobSyncClaims:
		return ResourceClaims, true
	case JobSyncQuestions:
		return ResourceQuestions, true
	default:
		return "", false
	}
}

// Command returns the write action for PUSH_*/POST_* job types.
func (t JobType) Command() (CommandType, bool) {
	switch t {
	case JobPushInventory:
		return CommandPushInventory, true
	case JobPushPrice:
		return CommandPushPrice, true
	case JobPostAnswer:
		return CommandAnswerQuestion, true
	case JobPostApprove:
		return CommandApproveClaim, true
	case JobPostReject:
		return CommandRejectClaim, true
	case JobPostTracking:
		return CommandUpdateTracking, true
	default:
		return "", false
	}
}

// ParseJobType normalizes input; returns (value, true) if valid.
func ParseJobType(s string) (JobType, bool) {
	t := JobType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// SyncJobType returns the SYNC_* job type for a resource class.
func SyncJobType(r ResourceType) (JobType, bool) {
	switch r {
	case ResourceOrders:
		return JobSyncOrders, true
	case ResourceProducts:
		return JobSyncProducts, true
	case ResourceClaims:
		return JobSyncClaims, true
	case ResourceQuestions:
		return JobSyncQuestions, true
	default:
		return "", false
	}
}

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Valid() bool {
	return s == JobQueued || s == JobRunning || s == JobSuccess || s == JobFailed
}

func (s JobStatus) Terminal() bool { return s == JobSuccess || s == JobFailed }

// jobTransitions is the closed forward-only transition table. Terminal states
// have no successors; a job is never resurrected. queued→failed covers jobs
// rejected before a worker ever picked them up.
var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:  {JobRunning, JobFailed},
	JobRunning: {JobSuccess, JobFailed},
}

// CanTransition reports whether status s may move to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, n := range jobTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// TransitionSources lists the statuses allowed to move to `to`, in a stable
// order. The persistence layer derives its UPDATE guards from this.
func TransitionSources(to JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobQueued, JobRunning, JobSuccess, JobFailed} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// Job is one scheduled unit of sync or push work against a connection.
// Mutated only by the worker executing it.
type Job struct {
	ID            string     `db:"id"`
	ConnectionID  int64      `db:"connection_id"`
	Type          JobType    `db:"type"`
	Status        JobStatus  `db:"status"`
	Payload       []byte     `db:"payload"`
	ResultSummary []byte     `db:"result_summary"`
	Error         *string    `db:"error"`
	CreatedAt     time.Time  `db:"created_at"`
	StartedAt     *time.Time `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
}
