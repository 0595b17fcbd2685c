package worker

import (
	"context"
	"testing"
	"time"

	"github.com/marketgate/mp-gateway/internal/engine"
	"github.com/marketgate/mp-gateway/internal/model"
)

func TestEventResource(t *testing.T) {
	cases := []struct {
		eventType string
		want      model.ResourceType
		ok        bool
	}{
		{"order.updated", model.ResourceOrders, true},
		{"order.created", model.ResourceOrders, true},
		{"product.price_changed", model.ResourceProducts, true},
		{"claim.opened", model.ResourceClaims, true},
		{"question.asked", model.ResourceQuestions, true},
		{"Question.asked", model.ResourceQuestions, true},
		{"invoice.issued", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := EventResource(tc.eventType)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("EventResource(%q) = (%q, %v), want (%q, %v)", tc.eventType, got, ok, tc.want, tc.ok)
		}
	}
}

type submitCall struct {
	connectionID int64
	jt           model.JobType
}

type fakeSubmitter struct {
	calls []submitCall
	errs  map[int64]error // by connection id
}

func (f *fakeSubmitter) Submit(_ context.Context, connectionID int64, jt model.JobType, _ []byte) (string, error) {
	f.calls = append(f.calls, submitCall{connectionID, jt})
	if err, ok := f.errs[connectionID]; ok {
		return "", err
	}
	return "job-x", nil
}

type fakeLister struct {
	conns []model.Connection
}

func (f *fakeLister) ListActive(context.Context) ([]model.Connection, error) {
	return f.conns, nil
}

func TestSchedulerTickSubmitsAllResources(t *testing.T) {
	sub := &fakeSubmitter{}
	lister := &fakeLister{conns: []model.Connection{{ID: 1}, {ID: 2}}}
	s := NewScheduler(lister, sub, time.Hour, nil, nil)

	s.tick(context.Background())

	want := 2 * len(model.AllResourceTypes())
	if len(sub.calls) != want {
		t.Fatalf("submits = %d, want %d", len(sub.calls), want)
	}
	if sub.calls[0].jt != model.JobSyncOrders {
		t.Fatalf("first job type = %q", sub.calls[0].jt)
	}
}

type fakeSweepStore struct {
	cutoffs chan time.Time
}

func (f *fakeSweepStore) SweepStale(_ context.Context, olderThan time.Time) (int64, error) {
	f.cutoffs <- olderThan
	return 2, nil
}

func TestSweeperRunSweepsWithCutoff(t *testing.T) {
	store := &fakeSweepStore{cutoffs: make(chan time.Time, 64)}
	s := NewSweeper(store, 5*time.Millisecond, 30*time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	var cutoff time.Time
	select {
	case cutoff = <-store.cutoffs:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep never ran")
	}
	cancel()
	<-done

	age := time.Since(cutoff)
	if age < 29*time.Minute || age > 31*time.Minute {
		t.Fatalf("cutoff age = %s, want ~30m before now", age)
	}
}

func TestSchedulerSkipsBusyConnection(t *testing.T) {
	sub := &fakeSubmitter{errs: map[int64]error{1: engine.ErrConnectionBusy}}
	lister := &fakeLister{conns: []model.Connection{{ID: 1}, {ID: 2}}}
	s := NewScheduler(lister, sub, time.Hour, nil, nil)

	s.tick(context.Background())

	// Connection 1 is skipped after the first busy rejection; connection 2
	// still gets every resource.
	var forOne, forTwo int
	for _, c := range sub.calls {
		switch c.connectionID {
		case 1:
			forOne++
		case 2:
			forTwo++
		}
	}
	if forOne != 1 {
		t.Fatalf("submits for busy connection = %d, want 1", forOne)
	}
	if forTwo != len(model.AllResourceTypes()) {
		t.Fatalf("submits for free connection = %d, want %d", forTwo, len(model.AllResourceTypes()))
	}
}
