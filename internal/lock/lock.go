// Package lock grants at most one outstanding lease per connection. Sync and
// command handlers mutate shared per-connection cursors and audit rows;
// concurrent handlers for the same connection could interleave upserts and
// corrupt cursor ordering, so the second job is rejected rather than queued.
package lock

import (
	"context"
	"errors"
)

// ErrBusy is returned when another lease for the same connection is
// outstanding.
var ErrBusy = errors.New("connection lock busy")

// ErrLost is returned by Refresh when the lease is no longer held: the TTL
// expired or it was released. The holder must stop assuming exclusivity.
var ErrLost = errors.New("connection lease lost")

// Lease is a held lock. Release must be called in a guaranteed-cleanup path
// (defer) so a failed job can never starve the connection. Long-running
// holders call Refresh periodically so the lease outlives jobs slower than
// the TTL.
type Lease interface {
	Release(ctx context.Context) error
	Refresh(ctx context.Context) error
}

type Locker interface {
	// Acquire grants the connection lease or fails fast with ErrBusy.
	Acquire(ctx context.Context, connectionID int64) (Lease, error)
}
