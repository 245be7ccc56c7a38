// Package events provides the append-only lifecycle notification channel the
// settlement engine writes to. Every emitted event is journaled, fanned out
// to in-process subscribers, and, when a signal bus is attached, published
// for out-of-process watchers (WebSocket hub, indexers).
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

const (
	// Channel is the pub/sub channel lifecycle events are published on.
	Channel = "ch:market"
	// Stream is the durable stream lifecycle events are appended to.
	Stream = "stream:market"

	// subscriberBuffer is the per-subscriber channel capacity. A subscriber
	// that falls this far behind starts losing events; the journal remains
	// complete.
	subscriberBuffer = 64
)

// Bus dispatches lifecycle events. Emission order is the serialization
// order of engine operations, so watchers observe listed → approved →
// purchased for any given order reference.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan domain.Event
	nextSub int

	journal domain.EventJournal
	signal  domain.SignalBus // optional
	logger  *slog.Logger
}

// NewBus creates a Bus journaling into journal. Pass a nil signal bus for
// in-process-only dispatch.
func NewBus(journal domain.EventJournal, signal domain.SignalBus, logger *slog.Logger) *Bus {
	return &Bus{
		subs:    make(map[int]chan domain.Event),
		journal: journal,
		signal:  signal,
		logger:  logger.With(slog.String("component", "event_bus")),
	}
}

// Emit journals and dispatches a lifecycle event for the given order
// snapshot, assigning the event id and emission timestamp. Journal failures
// are returned; fan-out failures are logged and do not fail the emitting
// operation, since the state transition has already been decided.
func (b *Bus) Emit(ctx context.Context, typ domain.EventType, ref domain.OrderRef, order domain.Order) error {
	ev := domain.Event{
		ID:        uuid.New().String(),
		Type:      typ,
		OrderRef:  ref,
		Order:     order.Clone(),
		EmittedAt: time.Now().UTC(),
	}

	if err := b.journal.Append(ctx, ev); err != nil {
		return err
	}

	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				slog.String("type", string(ev.Type)),
			)
		}
	}
	b.mu.RUnlock()

	if b.signal != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			b.logger.ErrorContext(ctx, "marshal event failed",
				slog.String("error", err.Error()),
			)
			return nil
		}
		if err := b.signal.Publish(ctx, Channel, payload); err != nil {
			b.logger.WarnContext(ctx, "publish event failed",
				slog.String("error", err.Error()),
			)
		}
		if err := b.signal.StreamAppend(ctx, Stream, payload); err != nil {
			b.logger.WarnContext(ctx, "stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}

	b.logger.InfoContext(ctx, "event emitted",
		slog.String("type", string(typ)),
		slog.Uint64("order_ref", uint64(ref)),
		slog.String("token", order.Key().String()),
	)
	return nil
}

// Subscribe registers an in-process watcher. The returned channel is closed
// when the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context) <-chan domain.Event {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Recent reads back up to limit journaled events, newest first.
func (b *Bus) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	return b.journal.Recent(ctx, limit)
}
