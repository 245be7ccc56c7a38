package domain

import "time"

// EventType classifies a lifecycle notification.
type EventType string

const (
	// EventTokenListed is emitted after a successful List.
	EventTokenListed EventType = "token_listed"
	// EventTokenApproved is emitted by CheckApproved when the registry
	// currently grants the marketplace a sufficient transfer approval.
	EventTokenApproved EventType = "token_approved"
	// EventTokenPurchased is emitted as the final step of a successful Buy.
	EventTokenPurchased EventType = "token_purchased"
)

// Event is a single lifecycle notification. Events are ordered by emission
// time and tied to the order reference assigned at listing time; the Order
// snapshot carries the order's values at emission (for purchases, the
// now-removed order's last values).
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	OrderRef  OrderRef  `json:"order_ref"`
	Order     Order     `json:"order"`
	EmittedAt time.Time `json:"emitted_at"`
}
