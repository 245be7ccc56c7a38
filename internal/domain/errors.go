package domain

import (
	"errors"
	"fmt"
)

// Validation and precondition errors. Each failing operation is a no-op from
// the order store's perspective; callers can match these with errors.Is.
var (
	// ErrCollectionNotFound means the collection id is not registered on the
	// token registry.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionNotNFT means the collection exists but is not of the
	// single-owner-per-token (ERC-721 style) kind this market supports.
	ErrCollectionNotNFT = errors.New("collection is not an NFT collection")

	// ErrTokenNotFound means the token id does not exist in the collection.
	ErrTokenNotFound = errors.New("token not found")

	// ErrSenderNotOwner means the listing caller is not the current owner of
	// the token as reported by the registry.
	ErrSenderNotOwner = errors.New("sender is not the token owner")

	// ErrTokenNotApproved means the marketplace operator holds no transfer
	// approval for the token.
	ErrTokenNotApproved = errors.New("token is not approved for transfer")

	// ErrOrderAlreadyListed means an active order already exists for the
	// (collection, token) pair.
	ErrOrderAlreadyListed = errors.New("order already listed")

	// ErrOrderNotFound means no active order exists for the pair.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientPayment means the attached payment is below the order
	// price.
	ErrInsufficientPayment = errors.New("insufficient payment")

	// ErrInsufficientFunds is returned by payment ledgers when an account
	// cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLockHeld means the per-token lock is currently held by another
	// operation.
	ErrLockHeld = errors.New("lock already held")
)

// TransferReason is the structured sub-code attached to a failed registry
// transfer at settlement time.
type TransferReason string

const (
	// ReasonApprovedValueTooLow: the approval held by the marketplace covers
	// fewer units than the order amount. Approval can be revoked or lowered
	// externally between listing and purchase.
	ReasonApprovedValueTooLow TransferReason = "approved value too low"

	// ReasonTokenUnavailable: the token no longer exists or left the
	// seller's account.
	ReasonTokenUnavailable TransferReason = "token unavailable"

	// ReasonRegistryRejected: the registry rejected the transfer for a
	// reason it did not classify.
	ReasonRegistryRejected TransferReason = "registry rejected transfer"
)

// TransferError reports a failed asset transfer during settlement. It wraps
// the reason sub-code so callers can branch programmatically instead of
// parsing messages.
type TransferError struct {
	Key    TokenKey
	Reason TransferReason
	Cause  error
}

// Error implements error.
func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token transfer failed for %s: %s: %v", e.Key, e.Reason, e.Cause)
	}
	return fmt.Sprintf("token transfer failed for %s: %s", e.Key, e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is chains.
func (e *TransferError) Unwrap() error {
	return e.Cause
}

// NewTransferError builds a TransferError for the given key and reason.
func NewTransferError(key TokenKey, reason TransferReason, cause error) *TransferError {
	return &TransferError{Key: key, Reason: reason, Cause: cause}
}
