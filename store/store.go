// Package store defines the state-store abstraction backing the
// pipeline orchestration core.
//
// The store provides typed hash, list and counter primitives on string
// keys. All invariants of the core are expressed over single-key
// operations; no cross-key atomicity is required. Production uses a
// Redis-compatible server (redisstore), dev and tests use an in-process
// substitute (memstore).
package store

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the backing store cannot be reached.
// Callers surface this as a 5xx; the worker treats it as retryable.
var ErrUnavailable = errors.New("state store unavailable")

// Store is the key/value primitive set required by the core.
// Implementations must be safe for concurrent use.
type Store interface {
	// Hash primitives.
	HashSet(ctx context.Context, key, field, value string) error
	// HashGet returns the field value and whether the field exists.
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashDelete(ctx context.Context, key, field string) error

	// List primitives. Push on the left, pop on the right: FIFO.
	ListPushLeft(ctx context.Context, key, value string) error
	ListPushRight(ctx context.Context, key, value string) error
	// ListPopRight returns the popped value and whether the list was non-empty.
	ListPopRight(ctx context.Context, key string) (string, bool, error)
	// ListPosition returns the zero-based index of value, and whether it is present.
	ListPosition(ctx context.Context, key, value string) (int64, bool, error)
	ListLength(ctx context.Context, key string) (int64, error)
	// ListRange returns elements from start to stop inclusive; -1 means the last.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// ListRemove removes up to count occurrences of value (count semantics
	// as in LREM) and returns how many were removed.
	ListRemove(ctx context.Context, key string, count int64, value string) (int64, error)

	// Counter primitives.
	CounterSet(ctx context.Context, key string, value int64) error
	// CounterGet returns 0 for an unset counter.
	CounterGet(ctx context.Context, key string) (int64, error)
	CounterIncr(ctx context.Context, key string) (int64, error)

	// Ping reports liveness of the backing store.
	Ping(ctx context.Context) error

	Close() error
}
