// Package market implements the settlement engine: order listing, approval
// checks, and atomic purchase against the external token registry and the
// payment ledger. All operations on the same (collection, token) key are
// linearized through a keyed lock; cross-key operations run in parallel.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/abdulgalimov/unique-market/internal/domain"
	"github.com/abdulgalimov/unique-market/internal/events"
)

// lockTTL bounds how long a distributed per-token lock may be held before
// it expires. In-process lock managers ignore it.
const lockTTL = 10 * time.Second

// Config carries the engine's identity on the external ledgers.
type Config struct {
	// Operator is the marketplace address token owners approve for
	// transfers; allowance checks are made against it.
	Operator string
	// Escrow is the ledger account settlement funds flow through between
	// debiting the buyer and paying the seller.
	Escrow string
}

// Engine validates preconditions, maintains the order store, and executes
// purchases as atomic state transitions. It owns all order mutation; the
// store is never written by anything else.
type Engine struct {
	orders   domain.OrderStore
	registry domain.TokenRegistry
	ledger   domain.PaymentLedger
	locks    domain.LockManager
	bus      *events.Bus
	operator string
	escrow   string
	logger   *slog.Logger
}

// NewEngine creates an Engine with all required collaborators.
func NewEngine(
	orders domain.OrderStore,
	registry domain.TokenRegistry,
	ledger domain.PaymentLedger,
	locks domain.LockManager,
	bus *events.Bus,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		orders:   orders,
		registry: registry,
		ledger:   ledger,
		locks:    locks,
		bus:      bus,
		operator: cfg.Operator,
		escrow:   cfg.Escrow,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// ListRequest is the input to List. Seller is the caller and must be the
// token's current owner.
type ListRequest struct {
	CollectionID uint32
	TokenID      uint32
	Price        *big.Int
	Amount       uint32
	Seller       string
}

// BuyRequest is the input to Buy. Payment is the full amount attached by
// the buyer; any surplus over the order price is refunded.
type BuyRequest struct {
	CollectionID uint32
	TokenID      uint32
	Buyer        string
	Payment      *big.Int
}

// List validates ownership and collection support, inserts a new order, and
// emits a token_listed event. It returns the order reference id. Approval
// is deliberately not required to list; it is required to buy.
func (e *Engine) List(ctx context.Context, req ListRequest) (domain.OrderRef, error) {
	if req.Price == nil || req.Price.Sign() <= 0 {
		return 0, fmt.Errorf("market: list %d/%d: price must be positive", req.CollectionID, req.TokenID)
	}
	if req.Amount < 1 {
		return 0, fmt.Errorf("market: list %d/%d: amount must be at least 1", req.CollectionID, req.TokenID)
	}
	if req.Seller == "" {
		return 0, fmt.Errorf("market: list %d/%d: seller address required", req.CollectionID, req.TokenID)
	}

	key := domain.TokenKey{CollectionID: req.CollectionID, TokenID: req.TokenID}

	unlock, err := e.locks.Acquire(ctx, key.String(), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("market: list %s: acquire lock: %w", key, err)
	}
	defer unlock()

	// Explicit precondition: one active order per pair.
	if _, _, err := e.orders.Get(ctx, key); err == nil {
		return 0, fmt.Errorf("market: list %s: %w", key, domain.ErrOrderAlreadyListed)
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return 0, fmt.Errorf("market: list %s: check existing order: %w", key, err)
	}

	exists, err := e.registry.CollectionExists(ctx, req.CollectionID)
	if err != nil {
		return 0, fmt.Errorf("market: list %s: collection lookup: %w", key, err)
	}
	if !exists {
		return 0, fmt.Errorf("market: list %s: %w", key, domain.ErrCollectionNotFound)
	}

	kind, err := e.registry.CollectionKind(ctx, req.CollectionID)
	if err != nil {
		return 0, fmt.Errorf("market: list %s: collection kind: %w", key, err)
	}
	if kind != domain.KindNFT {
		return 0, fmt.Errorf("market: list %s: kind %s: %w", key, kind, domain.ErrCollectionNotNFT)
	}

	owner, err := e.registry.OwnerOf(ctx, req.CollectionID, req.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return 0, fmt.Errorf("market: list %s: %w", key, domain.ErrTokenNotFound)
		}
		return 0, fmt.Errorf("market: list %s: owner lookup: %w", key, err)
	}
	if !sameAddress(owner, req.Seller) {
		return 0, fmt.Errorf("market: list %s: owner %s: %w", key, owner, domain.ErrSenderNotOwner)
	}

	order := domain.Order{
		CollectionID: req.CollectionID,
		TokenID:      req.TokenID,
		Price:        new(big.Int).Set(req.Price),
		Amount:       req.Amount,
		Seller:       req.Seller,
		ListedAt:     time.Now().UTC(),
	}

	ref, err := e.orders.Put(ctx, order)
	if err != nil {
		return 0, fmt.Errorf("market: list %s: store order: %w", key, err)
	}

	if err := e.bus.Emit(ctx, domain.EventTokenListed, ref, order); err != nil {
		e.logger.ErrorContext(ctx, "emit listed event failed",
			slog.String("token", key.String()),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "token listed",
		slog.String("token", key.String()),
		slog.Uint64("order_ref", uint64(ref)),
		slog.String("price", order.Price.String()),
		slog.String("seller", order.Seller),
	)
	return ref, nil
}

// CheckApproved re-queries the registry for the marketplace's current
// approval on a listed token and emits a token_approved event when the
// approval covers the order amount. It never mutates the order store.
func (e *Engine) CheckApproved(ctx context.Context, collectionID, tokenID uint32) error {
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}

	unlock, err := e.locks.Acquire(ctx, key.String(), lockTTL)
	if err != nil {
		return fmt.Errorf("market: check approved %s: acquire lock: %w", key, err)
	}
	defer unlock()

	order, ref, err := e.orders.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("market: check approved %s: %w", key, err)
	}

	allowance, err := e.registry.Allowance(ctx, collectionID, tokenID, e.operator)
	if err != nil {
		return fmt.Errorf("market: check approved %s: allowance lookup: %w", key, err)
	}
	if allowance < order.Amount {
		return fmt.Errorf("market: check approved %s: allowance %d of %d: %w",
			key, allowance, order.Amount, domain.ErrTokenNotApproved)
	}

	if err := e.bus.Emit(ctx, domain.EventTokenApproved, ref, order); err != nil {
		e.logger.ErrorContext(ctx, "emit approved event failed",
			slog.String("token", key.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Buy settles a purchase atomically: it escrows the buyer's payment, moves
// the token through the registry, pays the seller exactly the order price,
// refunds any surplus, removes the order, and emits a token_purchased
// event. A failed token transfer refunds the full escrow, so no failing
// purchase ever retains funds.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) error {
	if req.Buyer == "" {
		return fmt.Errorf("market: buy %d/%d: buyer address required", req.CollectionID, req.TokenID)
	}
	if req.Payment == nil || req.Payment.Sign() < 0 {
		return fmt.Errorf("market: buy %d/%d: payment must be non-negative", req.CollectionID, req.TokenID)
	}

	key := domain.TokenKey{CollectionID: req.CollectionID, TokenID: req.TokenID}

	unlock, err := e.locks.Acquire(ctx, key.String(), lockTTL)
	if err != nil {
		return fmt.Errorf("market: buy %s: acquire lock: %w", key, err)
	}
	defer unlock()

	order, ref, err := e.orders.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("market: buy %s: %w", key, err)
	}

	if req.Payment.Cmp(order.Price) < 0 {
		return fmt.Errorf("market: buy %s: payment %s below price %s: %w",
			key, req.Payment, order.Price, domain.ErrInsufficientPayment)
	}

	// Re-validate approval; it can have been revoked since listing.
	allowance, err := e.registry.Allowance(ctx, req.CollectionID, req.TokenID, e.operator)
	if err != nil {
		return fmt.Errorf("market: buy %s: allowance lookup: %w", key, err)
	}
	if allowance < order.Amount {
		return fmt.Errorf("market: buy %s: %w",
			key, domain.NewTransferError(key, domain.ReasonApprovedValueTooLow, nil))
	}

	// Escrow the full payment before touching the registry.
	if err := e.ledger.Transfer(ctx, req.Buyer, e.escrow, req.Payment); err != nil {
		return fmt.Errorf("market: buy %s: escrow payment: %w", key, err)
	}

	if err := e.registry.Transfer(ctx, req.CollectionID, req.TokenID, order.Seller, req.Buyer, order.Amount); err != nil {
		// Roll back: the buyer gets the full escrow back.
		if refundErr := e.ledger.Transfer(ctx, e.escrow, req.Buyer, req.Payment); refundErr != nil {
			e.logger.ErrorContext(ctx, "escrow refund failed",
				slog.String("token", key.String()),
				slog.String("buyer", req.Buyer),
				slog.String("error", refundErr.Error()),
			)
		}

		var transferErr *domain.TransferError
		if errors.As(err, &transferErr) {
			return fmt.Errorf("market: buy %s: %w", key, err)
		}
		return fmt.Errorf("market: buy %s: %w",
			key, domain.NewTransferError(key, domain.ReasonRegistryRejected, err))
	}

	// Pay the seller exactly the order price and refund the surplus. The
	// escrow holds the full payment at this point, so these transfers
	// cannot overdraw.
	if err := e.ledger.Transfer(ctx, e.escrow, order.Seller, order.Price); err != nil {
		return fmt.Errorf("market: buy %s: pay seller: %w", key, err)
	}
	if surplus := new(big.Int).Sub(req.Payment, order.Price); surplus.Sign() > 0 {
		if err := e.ledger.Transfer(ctx, e.escrow, req.Buyer, surplus); err != nil {
			return fmt.Errorf("market: buy %s: refund surplus: %w", key, err)
		}
	}

	if err := e.orders.Remove(ctx, key); err != nil {
		e.logger.ErrorContext(ctx, "remove settled order failed",
			slog.String("token", key.String()),
			slog.String("error", err.Error()),
		)
	}

	if err := e.bus.Emit(ctx, domain.EventTokenPurchased, ref, order); err != nil {
		e.logger.ErrorContext(ctx, "emit purchased event failed",
			slog.String("token", key.String()),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "token purchased",
		slog.String("token", key.String()),
		slog.Uint64("order_ref", uint64(ref)),
		slog.String("price", order.Price.String()),
		slog.String("seller", order.Seller),
		slog.String("buyer", req.Buyer),
	)
	return nil
}

// GetOrder returns the active order for the pair, or ErrOrderNotFound.
func (e *Engine) GetOrder(ctx context.Context, collectionID, tokenID uint32) (domain.Order, domain.OrderRef, error) {
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}
	order, ref, err := e.orders.Get(ctx, key)
	if err != nil {
		return domain.Order{}, 0, fmt.Errorf("market: get order %s: %w", key, err)
	}
	return order, ref, nil
}

// sameAddress compares two hex addresses case-insensitively.
func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
