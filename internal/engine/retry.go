package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marketgate/mp-gateway/internal/metrics"
	"github.com/marketgate/mp-gateway/internal/policy"
	"github.com/marketgate/mp-gateway/internal/remote"
)

// RemoteFailure is the terminal outcome of a backoff loop: either a permanent
// remote answer, or retryable failures that exhausted the profile's attempt
// ceiling. Body is kept verbatim so callers can surface the exact remote
// reason.
type RemoteFailure struct {
	Class    policy.Class
	Status   int
	Body     []byte
	Attempts int
	cause    error
}

func (f *RemoteFailure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("remote %s after %d attempt(s): %v", f.Class, f.Attempts, f.cause)
	}
	return fmt.Sprintf("remote %s after %d attempt(s): status=%d body=%s", f.Class, f.Attempts, f.Status, f.Body)
}

func (f *RemoteFailure) Unwrap() error { return f.cause }

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callRemote drives one bounded backoff loop around a remote call. The
// policy only classifies; the loop, ceiling and delays live here, shared by
// the sync and command handlers with their own profiles. Backoff waits do
// not release the connection lock: the lock is held for the whole job.
func callRemote(ctx context.Context, prof policy.Profile, sleep sleepFunc, call func(context.Context) (remote.Response, error)) (remote.Response, error) {
	attempts := prof.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	var last *RemoteFailure
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := call(ctx)
		switch {
		case err != nil:
			metrics.RemoteRequestsTotal.WithLabelValues("transport").Inc()
			last = &RemoteFailure{Class: policy.ClassRetryable, Attempts: attempt, cause: err}
		case resp.OK():
			metrics.RemoteRequestsTotal.WithLabelValues("2xx").Inc()
			return resp, nil
		default:
			metrics.RemoteRequestsTotal.WithLabelValues(statusClass(resp.Status)).Inc()
			cl := policy.Classify(resp.Status, resp.Body)
			last = &RemoteFailure{Class: cl, Status: resp.Status, Body: resp.Body, Attempts: attempt}
			if cl == policy.ClassPermanent {
				return resp, last
			}
		}

		if attempt < attempts {
			if err := sleep(ctx, prof.Delay(attempt)); err != nil {
				return remote.Response{}, last
			}
		}
	}
	return remote.Response{}, last
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
