// Package payment implements the value-transfer primitive settlement runs
// against. The in-memory Ledger backs standalone deployments and tests;
// chain-native payment arrives attached to the call in the original system,
// so the ledger only has to model balances, transfers, and the escrow
// account the engine settles through.
package payment

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// Ledger is an in-memory account ledger. Account names are case-insensitive
// hex addresses; unknown accounts read as zero.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]*big.Int)}
}

func normalize(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// Deposit credits an account. Used to fund buyer accounts before purchase.
func (l *Ledger) Deposit(_ context.Context, account string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("payment: deposit amount must be non-negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(normalize(account), amount)
	return nil
}

// Balance returns the current balance of an account.
func (l *Ledger) Balance(_ context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.balances[normalize(account)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Transfer atomically moves amount between accounts. The whole amount moves
// or nothing does.
func (l *Ledger) Transfer(_ context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("payment: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}

	src, dst := normalize(from), normalize(to)

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[src]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("payment: transfer %s from %s: %w", amount, from, domain.ErrInsufficientFunds)
	}

	balance.Sub(balance, amount)
	l.credit(dst, amount)
	return nil
}

// credit adds amount to an account; caller holds the mutex.
func (l *Ledger) credit(account string, amount *big.Int) {
	if b, ok := l.balances[account]; ok {
		b.Add(b, amount)
		return
	}
	l.balances[account] = new(big.Int).Set(amount)
}

// Compile-time interface check.
var _ domain.PaymentLedger = (*Ledger)(nil)
