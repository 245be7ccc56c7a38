package memory

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

func testOrder(collection, token uint32, price int64) domain.Order {
	return domain.Order{
		CollectionID: collection,
		TokenID:      token,
		Price:        big.NewInt(price),
		Amount:       1,
		Seller:       "0x1111111111111111111111111111111111111111",
	}
}

func TestOrderStore_PutAssignsMonotonicRefs(t *testing.T) {
	t.Parallel()

	s := NewOrderStore()
	ctx := context.Background()

	ref1, err := s.Put(ctx, testOrder(244, 3, 12))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRef(1), ref1)

	ref2, err := s.Put(ctx, testOrder(244, 4, 20))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRef(2), ref2)

	// Removing does not recycle references.
	require.NoError(t, s.Remove(ctx, domain.TokenKey{CollectionID: 244, TokenID: 3}))
	ref3, err := s.Put(ctx, testOrder(244, 3, 12))
	require.NoError(t, err)
	require.Equal(t, domain.OrderRef(3), ref3)
}

func TestOrderStore_PutRejectsDuplicateKey(t *testing.T) {
	t.Parallel()

	s := NewOrderStore()
	ctx := context.Background()

	_, err := s.Put(ctx, testOrder(1, 1, 5))
	require.NoError(t, err)

	_, err = s.Put(ctx, testOrder(1, 1, 99))
	require.ErrorIs(t, err, domain.ErrOrderAlreadyListed)
}

func TestOrderStore_GetReturnsSnapshot(t *testing.T) {
	t.Parallel()

	s := NewOrderStore()
	ctx := context.Background()

	_, err := s.Put(ctx, testOrder(1, 2, 10))
	require.NoError(t, err)

	got, ref, err := s.Get(ctx, domain.TokenKey{CollectionID: 1, TokenID: 2})
	require.NoError(t, err)
	require.Equal(t, domain.OrderRef(1), ref)

	// Mutating the snapshot must not affect the stored order.
	got.Price.SetInt64(999)
	again, _, err := s.Get(ctx, domain.TokenKey{CollectionID: 1, TokenID: 2})
	require.NoError(t, err)
	require.Zero(t, again.Price.Cmp(big.NewInt(10)))
}

func TestOrderStore_GetAndRemoveMissing(t *testing.T) {
	t.Parallel()

	s := NewOrderStore()
	ctx := context.Background()
	key := domain.TokenKey{CollectionID: 7, TokenID: 7}

	_, _, err := s.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.ErrorIs(t, s.Remove(ctx, key), domain.ErrOrderNotFound)
}

func TestEventJournal_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	j := NewEventJournal(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, j.Append(ctx, domain.Event{
			OrderRef: domain.OrderRef(i),
			Type:     domain.EventTokenListed,
		}))
	}

	// Capacity 3 keeps events 3..5; Recent returns newest first.
	events, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, domain.OrderRef(5), events[0].OrderRef)
	require.Equal(t, domain.OrderRef(4), events[1].OrderRef)
	require.Equal(t, domain.OrderRef(3), events[2].OrderRef)

	events, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.OrderRef(5), events[0].OrderRef)
}
