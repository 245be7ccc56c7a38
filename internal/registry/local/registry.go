// Package local is an in-memory token registry for standalone deployments
// and development. Tokens are minted and approved through its own API
// instead of a chain.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

type tokenState struct {
	owner      string
	allowances map[string]uint32 // operator -> approved amount
}

// Registry implements domain.TokenRegistry over process memory. All methods
// are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	collections map[uint32]domain.CollectionKind
	tokens      map[domain.TokenKey]*tokenState
}

var _ domain.TokenRegistry = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[uint32]domain.CollectionKind),
		tokens:      make(map[domain.TokenKey]*tokenState),
	}
}

// CreateCollection registers a collection with the given kind.
func (r *Registry) CreateCollection(collectionID uint32, kind domain.CollectionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[collectionID] = kind
}

// Mint creates a token owned by owner. The collection is created as an NFT
// collection when it does not exist yet.
func (r *Registry) Mint(collectionID, tokenID uint32, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[collectionID]; !ok {
		r.collections[collectionID] = domain.KindNFT
	}
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}
	r.tokens[key] = &tokenState{owner: owner, allowances: make(map[string]uint32)}
}

// Approve grants operator an allowance of amount units on the token.
func (r *Registry) Approve(collectionID, tokenID uint32, operator string, amount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}
	tok, ok := r.tokens[key]
	if !ok {
		return domain.ErrTokenNotFound
	}
	tok.allowances[operator] = amount
	return nil
}

// CollectionExists reports whether the collection is registered.
func (r *Registry) CollectionExists(_ context.Context, collectionID uint32) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.collections[collectionID]
	return ok, nil
}

// CollectionKind returns the collection's kind.
func (r *Registry) CollectionKind(_ context.Context, collectionID uint32) (domain.CollectionKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.collections[collectionID]
	if !ok {
		return domain.KindUnknown, nil
	}
	return kind, nil
}

// OwnerOf returns the token's current owner.
func (r *Registry) OwnerOf(_ context.Context, collectionID, tokenID uint32) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}]
	if !ok {
		return "", domain.ErrTokenNotFound
	}
	return tok.owner, nil
}

// Allowance returns the operator's current approval on the token.
func (r *Registry) Allowance(_ context.Context, collectionID, tokenID uint32, operator string) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}]
	if !ok {
		return 0, domain.ErrTokenNotFound
	}
	return tok.allowances[operator], nil
}

// Transfer moves the token to the new owner and consumes the approvals, the
// way a chain transfer resets per-token approvals.
func (r *Registry) Transfer(_ context.Context, collectionID, tokenID uint32, from, to string, amount uint32) error {
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}

	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[key]
	if !ok {
		return domain.NewTransferError(key, domain.ReasonTokenUnavailable, domain.ErrTokenNotFound)
	}
	if tok.owner != from {
		return domain.NewTransferError(key, domain.ReasonTokenUnavailable,
			fmt.Errorf("local: token owned by %s, not %s", tok.owner, from))
	}
	for _, allowance := range tok.allowances {
		if allowance >= amount {
			tok.owner = to
			tok.allowances = make(map[string]uint32)
			return nil
		}
	}
	return domain.NewTransferError(key, domain.ReasonApprovedValueTooLow, nil)
}
