package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lease, err := l.Acquire(ctx, 7)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := l.Acquire(ctx, 7); !errors.Is(err, ErrBusy) {
		t.Fatalf("second acquire err = %v, want ErrBusy", err)
	}

	// A different connection is unaffected.
	other, err := l.Acquire(ctx, 8)
	if err != nil {
		t.Fatalf("acquire other connection: %v", err)
	}
	_ = other.Release(ctx)

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := l.Acquire(ctx, 7)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = again.Release(ctx)
}

func TestMemoryLockerReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lease, err := l.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_ = lease.Release(ctx)
	_ = lease.Release(ctx) // double release must not free someone else's lease

	second, err := l.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = lease.Release(ctx)
	if _, err := l.Acquire(ctx, 1); !errors.Is(err, ErrBusy) {
		t.Fatalf("stale lease release freed an active lease")
	}
	_ = second.Release(ctx)
}

func TestMemoryLeaseRefresh(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lease, err := l.Acquire(ctx, 3)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lease.Refresh(ctx); err != nil {
		t.Fatalf("refresh while held: %v", err)
	}

	_ = lease.Release(ctx)
	if err := lease.Refresh(ctx); !errors.Is(err, ErrLost) {
		t.Fatalf("refresh after release err = %v, want ErrLost", err)
	}

	// A successor's lease must not make the stale one refreshable again.
	second, err := l.Acquire(ctx, 3)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if err := lease.Refresh(ctx); !errors.Is(err, ErrLost) {
		t.Fatalf("stale refresh err = %v, want ErrLost", err)
	}
	if err := second.Refresh(ctx); err != nil {
		t.Fatalf("successor refresh: %v", err)
	}
	_ = second.Release(ctx)
}

func TestMemoryLockerConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan Lease, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lease, err := l.Acquire(ctx, 42); err == nil {
				wins <- lease
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("winners = %d, want exactly 1", count)
	}
}
