package market

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// lockStripes is the number of mutexes keys are hashed across. Collisions
// only cost unnecessary serialization, never correctness.
const lockStripes = 64

// KeyLocks is the in-process LockManager used by single-instance
// deployments and tests. Each (collection, token) key hashes to one of a
// fixed set of mutexes, so operations on the same token are linearized
// while unrelated tokens proceed in parallel.
type KeyLocks struct {
	stripes [lockStripes]sync.Mutex
}

// NewKeyLocks creates a KeyLocks.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{}
}

// Acquire blocks until the stripe for key is obtained or the context is
// cancelled. The ttl is ignored; in-process locks cannot be orphaned.
func (kl *KeyLocks) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	stripe := &kl.stripes[h.Sum32()%lockStripes]

	acquired := make(chan struct{})
	go func() {
		stripe.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine will still take the stripe; release it as soon as
		// it does so the stripe is not leaked.
		go func() {
			<-acquired
			stripe.Unlock()
		}()
		return nil, ctx.Err()
	}

	released := false
	var mu sync.Mutex
	unlock := func() {
		mu.Lock()
		defer mu.Unlock()
		if released {
			return
		}
		released = true
		stripe.Unlock()
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*KeyLocks)(nil)
