package domain

import "context"

// CollectionKind classifies an external asset collection.
type CollectionKind string

const (
	// KindNFT is a single-unique-owner-per-token collection (ERC-721 style).
	// It is the only kind this marketplace supports.
	KindNFT CollectionKind = "nft"
	// KindFungible is a divisible-balance collection.
	KindFungible CollectionKind = "fungible"
	// KindRefungible is a fractionalized-ownership collection.
	KindRefungible CollectionKind = "refungible"
	// KindUnknown is reported when the registry cannot classify the
	// collection.
	KindUnknown CollectionKind = "unknown"
)

// TokenRegistry is the read/transfer facade over the external asset ledger.
// The settlement engine treats it as the sole source of truth for ownership
// and approval state; approval is re-validated at purchase time because it
// can be revoked externally between listing and purchase.
//
// All methods are synchronous and fallible. Transfer must either fully
// succeed or leave no state change visible.
type TokenRegistry interface {
	// CollectionExists reports whether the collection id is registered.
	CollectionExists(ctx context.Context, collectionID uint32) (bool, error)

	// CollectionKind returns the collection's asset kind.
	CollectionKind(ctx context.Context, collectionID uint32) (CollectionKind, error)

	// OwnerOf returns the current owner address of the token. It returns
	// ErrTokenNotFound when the token does not exist in the collection.
	OwnerOf(ctx context.Context, collectionID, tokenID uint32) (string, error)

	// Allowance returns how many units of the token the operator is
	// currently approved to move on the owner's behalf. Zero means no
	// approval. For strictly-unique tokens the value is 0 or 1.
	Allowance(ctx context.Context, collectionID, tokenID uint32, operator string) (uint32, error)

	// Transfer moves amount units of the token from one account to another
	// using the operator's approval. A failure is reported as a
	// *TransferError carrying the reason sub-code.
	Transfer(ctx context.Context, collectionID, tokenID uint32, from, to string, amount uint32) error
}
