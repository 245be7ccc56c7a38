package domain

import (
	"context"
	"time"
)

// OrderStore keeps at most one active order per (collection, token) key.
// All mutation goes through the settlement engine, which serializes
// operations per key; implementations still guard their own state so
// cross-key operations can run in parallel.
type OrderStore interface {
	// Put inserts a new order and returns the reference id assigned to it.
	// It returns ErrOrderAlreadyListed when an active order exists for the
	// order's key.
	Put(ctx context.Context, order Order) (OrderRef, error)

	// Get returns the active order and its reference for the key, or
	// ErrOrderNotFound.
	Get(ctx context.Context, key TokenKey) (Order, OrderRef, error)

	// Remove deletes the active order for the key. It returns
	// ErrOrderNotFound when no order exists.
	Remove(ctx context.Context, key TokenKey) error
}

// EventJournal is the append-only record of emitted lifecycle events, read
// back by the events API and external watchers that missed the live stream.
type EventJournal interface {
	Append(ctx context.Context, ev Event) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// LockManager provides keyed mutual exclusion. The settlement engine holds
// the token's lock for the duration of every operation on it, which
// linearizes list/check/buy per key while leaving other keys independent.
type LockManager interface {
	// Acquire obtains the lock for key, waiting up to ttl where the
	// implementation supports waiting. It returns an unlock function that
	// is safe to call more than once, or ErrLockHeld when the lock cannot
	// be obtained.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out and durable, ordered streams for
// lifecycle events consumed by out-of-process watchers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
