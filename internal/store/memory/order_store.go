// Package memory implements the order store and event journal as in-process
// data structures. It is the default backend in standalone mode and the
// reference implementation the postgres backend mirrors.
package memory

import (
	"context"
	"sync"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// entry pairs a stored order with the reference assigned at insertion.
type entry struct {
	order domain.Order
	ref   domain.OrderRef
}

// OrderStore is a mutex-guarded map from token key to the single active
// order. References are assigned from a counter that only ever increases,
// so watchers can rely on reference order matching insertion order.
type OrderStore struct {
	mu      sync.RWMutex
	orders  map[domain.TokenKey]entry
	lastRef domain.OrderRef
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[domain.TokenKey]entry),
	}
}

// Put inserts a new order and returns its reference id.
func (s *OrderStore) Put(_ context.Context, order domain.Order) (domain.OrderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := order.Key()
	if _, ok := s.orders[key]; ok {
		return 0, domain.ErrOrderAlreadyListed
	}

	s.lastRef++
	s.orders[key] = entry{order: order.Clone(), ref: s.lastRef}
	return s.lastRef, nil
}

// Get returns the active order and its reference for the key.
func (s *OrderStore) Get(_ context.Context, key domain.TokenKey) (domain.Order, domain.OrderRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.orders[key]
	if !ok {
		return domain.Order{}, 0, domain.ErrOrderNotFound
	}
	return e.order.Clone(), e.ref, nil
}

// Remove deletes the active order for the key.
func (s *OrderStore) Remove(_ context.Context, key domain.TokenKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[key]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, key)
	return nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
