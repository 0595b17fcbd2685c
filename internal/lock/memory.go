package lock

import (
	"context"
	"sync"
)

// MemoryLocker is a process-local keyed mutex. It backs tests and single-node
// deployments without Redis.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int64]*memoryLease
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[int64]*memoryLease)}
}

var _ Locker = (*MemoryLocker)(nil)

func (l *MemoryLocker) Acquire(_ context.Context, connectionID int64) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[connectionID]; ok {
		return nil, ErrBusy
	}
	lease := &memoryLease{locker: l, id: connectionID}
	l.held[connectionID] = lease
	return lease, nil
}

type memoryLease struct {
	locker *MemoryLocker
	id     int64
}

// Release frees the slot only while this lease still owns it, so a stale
// double release never evicts a successor's lease.
func (m *memoryLease) Release(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if m.locker.held[m.id] == m {
		delete(m.locker.held, m.id)
	}
	return nil
}

// Refresh has no TTL to extend; it only reports whether the lease is still
// owned, matching the redis implementation's contract.
func (m *memoryLease) Refresh(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if m.locker.held[m.id] != m {
		return ErrLost
	}
	return nil
}
