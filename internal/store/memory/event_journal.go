package memory

import (
	"context"
	"sync"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// defaultJournalCap bounds the ring buffer when no capacity is given.
const defaultJournalCap = 1024

// EventJournal keeps the most recent lifecycle events in a fixed-size ring
// buffer. Older events are evicted silently; durable history belongs to the
// postgres journal.
type EventJournal struct {
	mu     sync.RWMutex
	buf    []domain.Event
	next   int
	filled bool
}

// NewEventJournal creates a journal retaining up to capacity events. A
// non-positive capacity falls back to the default.
func NewEventJournal(capacity int) *EventJournal {
	if capacity <= 0 {
		capacity = defaultJournalCap
	}
	return &EventJournal{buf: make([]domain.Event, capacity)}
}

// Append records an event, evicting the oldest when full.
func (j *EventJournal) Append(_ context.Context, ev domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf[j.next] = ev
	j.next++
	if j.next == len(j.buf) {
		j.next = 0
		j.filled = true
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *EventJournal) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	size := j.next
	if j.filled {
		size = len(j.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]domain.Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := j.next - 1 - i
		if idx < 0 {
			idx += len(j.buf)
		}
		out = append(out, j.buf[idx])
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EventJournal = (*EventJournal)(nil)
