package events

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abdulgalimov/unique-market/internal/domain"
	"github.com/abdulgalimov/unique-market/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBus_EmitJournalsAndNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(memory.NewEventJournal(16), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := bus.Subscribe(ctx)

	order := domain.Order{
		CollectionID: 244,
		TokenID:      3,
		Price:        big.NewInt(12),
		Amount:       1,
		Seller:       "0xseller",
	}
	require.NoError(t, bus.Emit(ctx, domain.EventTokenListed, 1, order))

	select {
	case ev := <-sub:
		require.Equal(t, domain.EventTokenListed, ev.Type)
		require.Equal(t, domain.OrderRef(1), ev.OrderRef)
		require.NotEmpty(t, ev.ID)
		require.False(t, ev.EmittedAt.IsZero())
		require.Zero(t, ev.Order.Price.Cmp(big.NewInt(12)))
	case <-time.After(time.Second):
		t.Fatal("expected event on subscriber channel")
	}

	recent, err := bus.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, domain.EventTokenListed, recent[0].Type)
}

func TestBus_EmissionOrderPreservedInJournal(t *testing.T) {
	t.Parallel()

	bus := NewBus(memory.NewEventJournal(16), nil, testLogger())
	ctx := context.Background()

	order := domain.Order{CollectionID: 1, TokenID: 1, Price: big.NewInt(5), Amount: 1}
	require.NoError(t, bus.Emit(ctx, domain.EventTokenListed, 1, order))
	require.NoError(t, bus.Emit(ctx, domain.EventTokenApproved, 1, order))
	require.NoError(t, bus.Emit(ctx, domain.EventTokenPurchased, 1, order))

	recent, err := bus.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, domain.EventTokenPurchased, recent[0].Type)
	require.Equal(t, domain.EventTokenApproved, recent[1].Type)
	require.Equal(t, domain.EventTokenListed, recent[2].Type)
}

func TestBus_SubscriptionClosesOnContextCancel(t *testing.T) {
	t.Parallel()

	bus := NewBus(memory.NewEventJournal(16), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-sub:
		require.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("expected closed channel after cancel")
	}
}
