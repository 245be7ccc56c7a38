package payment

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

func TestLedger_DepositAndBalance(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "0xAbC", big.NewInt(100)))
	require.NoError(t, l.Deposit(ctx, "0xabc", big.NewInt(50)))

	// Account names are case-insensitive.
	b, err := l.Balance(ctx, "0xABC")
	require.NoError(t, err)
	require.Zero(t, b.Cmp(big.NewInt(150)))

	// Unknown accounts read as zero.
	b, err = l.Balance(ctx, "0xdead")
	require.NoError(t, err)
	require.Zero(t, b.Sign())
}

func TestLedger_TransferMovesFullAmountOrNothing(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "alice", big.NewInt(30)))

	require.NoError(t, l.Transfer(ctx, "alice", "bob", big.NewInt(12)))

	aliceBal, _ := l.Balance(ctx, "alice")
	bobBal, _ := l.Balance(ctx, "bob")
	require.Zero(t, aliceBal.Cmp(big.NewInt(18)))
	require.Zero(t, bobBal.Cmp(big.NewInt(12)))

	// Overdraft fails and leaves both balances untouched.
	err := l.Transfer(ctx, "alice", "bob", big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	aliceBal, _ = l.Balance(ctx, "alice")
	bobBal, _ = l.Balance(ctx, "bob")
	require.Zero(t, aliceBal.Cmp(big.NewInt(18)))
	require.Zero(t, bobBal.Cmp(big.NewInt(12)))
}

func TestLedger_TransferRejectsNegative(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	require.Error(t, l.Transfer(context.Background(), "a", "b", big.NewInt(-1)))
}

func TestLedger_ConcurrentTransfersConserveTotal(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "hub", big.NewInt(1000)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = l.Transfer(ctx, "hub", "sink", big.NewInt(1))
			}
		}()
	}
	wg.Wait()

	hubBal, _ := l.Balance(ctx, "hub")
	sinkBal, _ := l.Balance(ctx, "sink")
	require.Zero(t, new(big.Int).Add(hubBal, sinkBal).Cmp(big.NewInt(1000)))
	require.Zero(t, sinkBal.Cmp(big.NewInt(100)))
}
