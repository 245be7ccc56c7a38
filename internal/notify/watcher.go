package notify

import (
	"context"
	"fmt"

	"github.com/abdulgalimov/unique-market/internal/domain"
	"github.com/abdulgalimov/unique-market/internal/events"
)

// Watcher consumes the lifecycle event stream and turns events into
// operator notifications.
type Watcher struct {
	bus      *events.Bus
	notifier *Notifier
}

// NewWatcher creates a Watcher forwarding bus events to the notifier.
func NewWatcher(bus *events.Bus, notifier *Notifier) *Watcher {
	return &Watcher{bus: bus, notifier: notifier}
}

// Run blocks consuming events until the context is cancelled. Delivery
// failures are already logged by the notifier and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	ch := w.bus.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			title, message := formatEvent(ev)
			_ = w.notifier.Notify(ctx, ev.Type, title, message)
		}
	}
}

// formatEvent renders a lifecycle event as a short operator message.
func formatEvent(ev domain.Event) (title, message string) {
	token := ev.Order.Key().String()
	switch ev.Type {
	case domain.EventTokenListed:
		title = "Token listed"
		message = fmt.Sprintf("Token %s listed for %s by %s (order #%d)",
			token, ev.Order.Price, ev.Order.Seller, ev.OrderRef)
	case domain.EventTokenApproved:
		title = "Token approved"
		message = fmt.Sprintf("Transfer approval confirmed for token %s (order #%d)",
			token, ev.OrderRef)
	case domain.EventTokenPurchased:
		title = "Token sold"
		message = fmt.Sprintf("Token %s sold for %s, seller %s (order #%d)",
			token, ev.Order.Price, ev.Order.Seller, ev.OrderRef)
	default:
		title = string(ev.Type)
		message = fmt.Sprintf("Token %s (order #%d)", token, ev.OrderRef)
	}
	return title, message
}
