// Package domain defines the marketplace entities, capability interfaces,
// and error taxonomy shared by every other package. Nothing in here touches
// the network or the database; concrete implementations live under
// internal/store, internal/cache, internal/registry, and internal/payment.
package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// TokenKey identifies a single token inside a collection. At most one active
// Order may exist per key at any time.
type TokenKey struct {
	CollectionID uint32 `json:"collection_id"`
	TokenID      uint32 `json:"token_id"`
}

// String renders the key as "collection/token" for log fields and lock keys.
func (k TokenKey) String() string {
	return strconv.FormatUint(uint64(k.CollectionID), 10) + "/" +
		strconv.FormatUint(uint64(k.TokenID), 10)
}

// OrderRef is the opaque reference id assigned by the order store when an
// order is inserted. References increase monotonically with insertion order.
// On the wire they are rendered as decimal strings ("1", "2", …) to match
// the event payload format consumed by existing watchers.
type OrderRef uint64

// MarshalJSON renders the reference as a decimal string.
func (r OrderRef) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(r), 10) + `"`), nil
}

// UnmarshalJSON accepts both string and bare-number encodings.
func (r *OrderRef) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("domain: parse order ref %q: %w", s, err)
	}
	*r = OrderRef(v)
	return nil
}

// Order is an active fixed-price sale listing for one token. Price and
// Amount are immutable after creation; the only mutation is removal on a
// successful purchase.
type Order struct {
	CollectionID uint32    `json:"collection_id"`
	TokenID      uint32    `json:"token_id"`
	Price        *big.Int  `json:"price"`
	Amount       uint32    `json:"amount"`
	Seller       string    `json:"seller"`
	ListedAt     time.Time `json:"listed_at"`
}

// Key returns the (collection, token) key the order is stored under.
func (o Order) Key() TokenKey {
	return TokenKey{CollectionID: o.CollectionID, TokenID: o.TokenID}
}

// Clone returns a deep copy so stored orders cannot be mutated through
// returned snapshots.
func (o Order) Clone() Order {
	c := o
	if o.Price != nil {
		c.Price = new(big.Int).Set(o.Price)
	}
	return c
}
