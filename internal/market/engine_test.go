package market

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abdulgalimov/unique-market/internal/domain"
	"github.com/abdulgalimov/unique-market/internal/events"
	"github.com/abdulgalimov/unique-market/internal/payment"
	"github.com/abdulgalimov/unique-market/internal/store/memory"
)

const (
	sellerAddr   = "0x1111111111111111111111111111111111111111"
	buyerAddr    = "0x2222222222222222222222222222222222222222"
	operatorAddr = "0x3333333333333333333333333333333333333333"
	escrowAddr   = "escrow"
)

// fakeRegistry is an in-memory token registry with mutable ownership and
// approval state, standing in for the external asset ledger.
type fakeRegistry struct {
	mu          sync.Mutex
	collections map[uint32]domain.CollectionKind
	owners      map[domain.TokenKey]string
	allowances  map[domain.TokenKey]uint32 // approval granted to the operator
	transferErr error                      // forced transfer failure
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		collections: make(map[uint32]domain.CollectionKind),
		owners:      make(map[domain.TokenKey]string),
		allowances:  make(map[domain.TokenKey]uint32),
	}
}

func (r *fakeRegistry) addCollection(id uint32, kind domain.CollectionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[id] = kind
}

func (r *fakeRegistry) mint(collection, token uint32, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[domain.TokenKey{CollectionID: collection, TokenID: token}] = owner
}

func (r *fakeRegistry) approve(collection, token, amount uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowances[domain.TokenKey{CollectionID: collection, TokenID: token}] = amount
}

func (r *fakeRegistry) CollectionExists(_ context.Context, collectionID uint32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.collections[collectionID]
	return ok, nil
}

func (r *fakeRegistry) CollectionKind(_ context.Context, collectionID uint32) (domain.CollectionKind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, ok := r.collections[collectionID]
	if !ok {
		return domain.KindUnknown, nil
	}
	return kind, nil
}

func (r *fakeRegistry) OwnerOf(_ context.Context, collectionID, tokenID uint32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}]
	if !ok {
		return "", domain.ErrTokenNotFound
	}
	return owner, nil
}

func (r *fakeRegistry) Allowance(_ context.Context, collectionID, tokenID uint32, _ string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allowances[domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}], nil
}

func (r *fakeRegistry) Transfer(_ context.Context, collectionID, tokenID uint32, from, to string, _ uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transferErr != nil {
		return r.transferErr
	}
	key := domain.TokenKey{CollectionID: collectionID, TokenID: tokenID}
	if r.owners[key] != from {
		return domain.NewTransferError(key, domain.ReasonTokenUnavailable, nil)
	}
	r.owners[key] = to
	r.allowances[key] = 0
	return nil
}

// harness bundles an engine with its collaborators so tests can inspect
// them after operations.
type harness struct {
	engine   *Engine
	registry *fakeRegistry
	ledger   *payment.Ledger
	store    *memory.OrderStore
	bus      *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	registry := newFakeRegistry()
	ledger := payment.NewLedger()
	store := memory.NewOrderStore()
	bus := events.NewBus(memory.NewEventJournal(64), nil, logger)

	engine := NewEngine(store, registry, ledger, NewKeyLocks(), bus,
		Config{Operator: operatorAddr, Escrow: escrowAddr}, logger)

	return &harness{
		engine:   engine,
		registry: registry,
		ledger:   ledger,
		store:    store,
		bus:      bus,
	}
}

// listedToken prepares a supported collection with one minted token.
func (h *harness) listedToken(collection, token uint32, owner string) {
	h.registry.addCollection(collection, domain.KindNFT)
	h.registry.mint(collection, token, owner)
}

func listReq(collection, token uint32, price int64) ListRequest {
	return ListRequest{
		CollectionID: collection,
		TokenID:      token,
		Price:        big.NewInt(price),
		Amount:       1,
		Seller:       sellerAddr,
	}
}

func balance(t *testing.T, l *payment.Ledger, account string) *big.Int {
	t.Helper()
	b, err := l.Balance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func TestEngine_ListSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)

	ref, err := h.engine.List(ctx, listReq(244, 3, 12))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRef(1), ref)

	order, gotRef, err := h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
	require.Equal(t, ref, gotRef)
	require.Equal(t, uint32(244), order.CollectionID)
	require.Equal(t, uint32(3), order.TokenID)
	require.Zero(t, order.Price.Cmp(big.NewInt(12)))
	require.Equal(t, uint32(1), order.Amount)
	require.Equal(t, sellerAddr, order.Seller)

	recent, err := h.bus.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, domain.EventTokenListed, recent[0].Type)
	require.Equal(t, ref, recent[0].OrderRef)
}

func TestEngine_ListFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		prepare func(h *harness)
		req     ListRequest
		wantErr error
	}{
		{
			name:    "collection not found",
			prepare: func(h *harness) {},
			req:     listReq(1000000, 1, 3),
			wantErr: domain.ErrCollectionNotFound,
		},
		{
			name: "collection not NFT",
			prepare: func(h *harness) {
				h.registry.addCollection(251, domain.KindFungible)
			},
			req:     listReq(251, 1, 3),
			wantErr: domain.ErrCollectionNotNFT,
		},
		{
			name: "token not found",
			prepare: func(h *harness) {
				h.registry.addCollection(244, domain.KindNFT)
			},
			req:     listReq(244, 1000, 3),
			wantErr: domain.ErrTokenNotFound,
		},
		{
			name: "sender not owner",
			prepare: func(h *harness) {
				h.listedToken(244, 2, "0x9999999999999999999999999999999999999999")
			},
			req:     listReq(244, 2, 3),
			wantErr: domain.ErrSenderNotOwner,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			tc.prepare(h)

			_, err := h.engine.List(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.wantErr)

			// No order is created by any failing list.
			_, _, err = h.store.Get(context.Background(),
				domain.TokenKey{CollectionID: tc.req.CollectionID, TokenID: tc.req.TokenID})
			require.ErrorIs(t, err, domain.ErrOrderNotFound)

			recent, err := h.bus.Recent(context.Background(), 10)
			require.NoError(t, err)
			require.Empty(t, recent)
		})
	}
}

func TestEngine_ListRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(1, 1, sellerAddr)

	req := listReq(1, 1, 10)
	req.Price = big.NewInt(0)
	_, err := h.engine.List(ctx, req)
	require.Error(t, err)

	req = listReq(1, 1, 10)
	req.Amount = 0
	_, err = h.engine.List(ctx, req)
	require.Error(t, err)
}

func TestEngine_RelistingRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)

	_, err := h.engine.List(ctx, listReq(244, 3, 12))
	require.NoError(t, err)

	_, err = h.engine.List(ctx, listReq(244, 3, 15))
	require.ErrorIs(t, err, domain.ErrOrderAlreadyListed)

	// The original order is untouched.
	order, _, err := h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
	require.Zero(t, order.Price.Cmp(big.NewInt(12)))
}

func TestEngine_CheckApproved(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)

	ref, err := h.engine.List(ctx, listReq(244, 3, 12))
	require.NoError(t, err)

	// Not approved yet.
	err = h.engine.CheckApproved(ctx, 244, 3)
	require.ErrorIs(t, err, domain.ErrTokenNotApproved)

	h.registry.approve(244, 3, 1)
	require.NoError(t, h.engine.CheckApproved(ctx, 244, 3))

	recent, err := h.bus.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, domain.EventTokenApproved, recent[0].Type)
	require.Equal(t, ref, recent[0].OrderRef)

	// The check never mutates the order store.
	_, _, err = h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
}

func TestEngine_CheckApprovedWithoutOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.engine.CheckApproved(context.Background(), 9, 9)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// TestEngine_BuySettlesAtomically covers the end-to-end scenario: list at
// price 12, approve, buy with payment 22. The buyer pays exactly the
// price, the seller receives exactly the price, and the order is gone.
func TestEngine_BuySettlesAtomically(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)
	require.NoError(t, h.ledger.Deposit(ctx, buyerAddr, big.NewInt(100)))

	ref, err := h.engine.List(ctx, listReq(244, 3, 12))
	require.NoError(t, err)

	h.registry.approve(244, 3, 1)
	require.NoError(t, h.engine.CheckApproved(ctx, 244, 3))

	require.NoError(t, h.engine.Buy(ctx, BuyRequest{
		CollectionID: 244,
		TokenID:      3,
		Buyer:        buyerAddr,
		Payment:      big.NewInt(22),
	}))

	// Buyer paid exactly the price; the surplus of 10 came back.
	require.Zero(t, balance(t, h.ledger, buyerAddr).Cmp(big.NewInt(88)))
	require.Zero(t, balance(t, h.ledger, sellerAddr).Cmp(big.NewInt(12)))
	require.Zero(t, balance(t, h.ledger, escrowAddr).Sign())

	// Ownership moved to the buyer.
	owner, err := h.registry.OwnerOf(ctx, 244, 3)
	require.NoError(t, err)
	require.Equal(t, buyerAddr, owner)

	// The order is gone; a second buy fails with not-found.
	_, _, err = h.engine.GetOrder(ctx, 244, 3)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	err = h.engine.Buy(ctx, BuyRequest{
		CollectionID: 244,
		TokenID:      3,
		Buyer:        buyerAddr,
		Payment:      big.NewInt(22),
	})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	// Lifecycle events carry the same order reference, newest first.
	recent, err := h.bus.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, domain.EventTokenPurchased, recent[0].Type)
	require.Equal(t, domain.EventTokenApproved, recent[1].Type)
	require.Equal(t, domain.EventTokenListed, recent[2].Type)
	for _, ev := range recent {
		require.Equal(t, ref, ev.OrderRef)
	}
	// The purchased event snapshots the removed order's last values.
	require.Zero(t, recent[0].Order.Price.Cmp(big.NewInt(12)))
	require.Equal(t, sellerAddr, recent[0].Order.Seller)
}

func TestEngine_BuyInsufficientPayment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)
	require.NoError(t, h.ledger.Deposit(ctx, buyerAddr, big.NewInt(100)))

	_, err := h.engine.List(ctx, listReq(244, 3, 12))
	require.NoError(t, err)
	h.registry.approve(244, 3, 1)

	err = h.engine.Buy(ctx, BuyRequest{
		CollectionID: 244,
		TokenID:      3,
		Buyer:        buyerAddr,
		Payment:      big.NewInt(11),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	// No funds moved and the order is still live.
	require.Zero(t, balance(t, h.ledger, buyerAddr).Cmp(big.NewInt(100)))
	require.Zero(t, balance(t, h.ledger, sellerAddr).Sign())
	_, _, err = h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
}

func TestEngine_BuyApprovalRevoked(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)
	require.NoError(t, h.ledger.Deposit(ctx, buyerAddr, big.NewInt(100)))

	_, err := h.engine.List(ctx, listReq(244, 3, 10))
	require.NoError(t, err)
	// Approval was never granted (or revoked after listing).

	err = h.engine.Buy(ctx, BuyRequest{
		CollectionID: 244,
		TokenID:      3,
		Buyer:        buyerAddr,
		Payment:      big.NewInt(10),
	})

	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	require.Equal(t, domain.ReasonApprovedValueTooLow, transferErr.Reason)

	// No funds retained from the failed attempt.
	require.Zero(t, balance(t, h.ledger, buyerAddr).Cmp(big.NewInt(100)))
	require.Zero(t, balance(t, h.ledger, sellerAddr).Sign())
	require.Zero(t, balance(t, h.ledger, escrowAddr).Sign())

	// The order survives a failed purchase.
	_, _, err = h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
}

func TestEngine_BuyTransferFailureRefundsEscrow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)
	require.NoError(t, h.ledger.Deposit(ctx, buyerAddr, big.NewInt(50)))

	_, err := h.engine.List(ctx, listReq(244, 3, 10))
	require.NoError(t, err)
	h.registry.approve(244, 3, 1)

	// Registry accepts the allowance query but rejects the transfer.
	h.registry.transferErr = domain.NewTransferError(
		domain.TokenKey{CollectionID: 244, TokenID: 3},
		domain.ReasonTokenUnavailable, nil)

	err = h.engine.Buy(ctx, BuyRequest{
		CollectionID: 244,
		TokenID:      3,
		Buyer:        buyerAddr,
		Payment:      big.NewInt(30),
	})

	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	require.Equal(t, domain.ReasonTokenUnavailable, transferErr.Reason)

	// The full escrowed payment was rolled back to the buyer.
	require.Zero(t, balance(t, h.ledger, buyerAddr).Cmp(big.NewInt(50)))
	require.Zero(t, balance(t, h.ledger, sellerAddr).Sign())
	require.Zero(t, balance(t, h.ledger, escrowAddr).Sign())

	// Ownership did not move and the order is still live.
	owner, err := h.registry.OwnerOf(ctx, 244, 3)
	require.NoError(t, err)
	require.Equal(t, sellerAddr, owner)
	_, _, err = h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
}

func TestEngine_BuyUnfundedBuyer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)

	_, err := h.engine.List(ctx, listReq(244, 3, 10))
	require.NoError(t, err)
	h.registry.approve(244, 3, 1)

	err = h.engine.Buy(ctx, BuyRequest{
		CollectionID: 244,
		TokenID:      3,
		Buyer:        buyerAddr,
		Payment:      big.NewInt(10),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, _, err = h.engine.GetOrder(ctx, 244, 3)
	require.NoError(t, err)
}

// TestEngine_ConcurrentBuyersSingleWinner checks per-key serialization:
// many buyers race for one order, exactly one wins, every loser keeps
// their funds.
func TestEngine_ConcurrentBuyersSingleWinner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.listedToken(244, 3, sellerAddr)

	_, err := h.engine.List(ctx, listReq(244, 3, 10))
	require.NoError(t, err)
	h.registry.approve(244, 3, 1)

	const buyers = 8
	accounts := make([]string, buyers)
	for i := range accounts {
		accounts[i] = string(rune('a'+i)) + "-buyer"
		require.NoError(t, h.ledger.Deposit(ctx, accounts[i], big.NewInt(100)))
	}

	var wg sync.WaitGroup
	var winners int32
	var mu sync.Mutex
	for _, account := range accounts {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			err := h.engine.Buy(ctx, BuyRequest{
				CollectionID: 244,
				TokenID:      3,
				Buyer:        buyer,
				Payment:      big.NewInt(15),
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(account)
	}
	wg.Wait()

	require.EqualValues(t, 1, winners)
	require.Zero(t, balance(t, h.ledger, sellerAddr).Cmp(big.NewInt(10)))
	require.Zero(t, balance(t, h.ledger, escrowAddr).Sign())

	// All buyer balances sum to 8*100 - 10.
	total := new(big.Int)
	for _, account := range accounts {
		total.Add(total, balance(t, h.ledger, account))
	}
	require.Zero(t, total.Cmp(big.NewInt(buyers*100-10)))
}

func TestKeyLocks_SerializesSameKey(t *testing.T) {
	t.Parallel()

	locks := NewKeyLocks()
	ctx := context.Background()

	unlock, err := locks.Acquire(ctx, "244/3", time.Second)
	require.NoError(t, err)

	// A second acquire for the same key blocks until released.
	acquired := make(chan struct{})
	go func() {
		u2, err := locks.Acquire(ctx, "244/3", time.Second)
		if err == nil {
			u2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should proceed after unlock")
	}

	// Unlock is idempotent.
	unlock()
}

func TestKeyLocks_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	locks := NewKeyLocks()

	unlock, err := locks.Acquire(context.Background(), "1/1", time.Second)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locks.Acquire(ctx, "1/1", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
