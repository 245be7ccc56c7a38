package domain

import (
	"context"
	"math/big"
)

// PaymentLedger is the synchronous value-transfer primitive settlement runs
// against. The engine escrows the buyer's full payment, pays the seller
// exactly the order price, and refunds the remainder; a failed settlement
// refunds the full escrow, so no failing operation ever retains funds.
//
// Transfers are atomic per call: either the full amount moves or nothing
// does (ErrInsufficientFunds when the source cannot cover it).
type PaymentLedger interface {
	// Balance returns the current balance of an account. Unknown accounts
	// have a zero balance.
	Balance(ctx context.Context, account string) (*big.Int, error)

	// Transfer moves amount from one account to another.
	Transfer(ctx context.Context, from, to string, amount *big.Int) error
}
