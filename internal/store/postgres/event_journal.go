package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// EventJournal implements domain.EventJournal on PostgreSQL. The order
// snapshot is kept as JSONB so the journal survives schema drift in the
// order shape.
type EventJournal struct {
	pool *pgxpool.Pool
}

var _ domain.EventJournal = (*EventJournal)(nil)

// NewEventJournal creates an EventJournal backed by the given pool.
func NewEventJournal(pool *pgxpool.Pool) *EventJournal {
	return &EventJournal{pool: pool}
}

// Append persists a lifecycle event.
func (j *EventJournal) Append(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev.Order)
	if err != nil {
		return fmt.Errorf("postgres: marshal event %s: %w", ev.ID, err)
	}

	const query = `
		INSERT INTO market_events (id, event_type, order_ref, payload, emitted_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = j.pool.Exec(ctx, query,
		ev.ID, string(ev.Type), int64(ev.OrderRef), payload, ev.EmittedAt)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *EventJournal) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	const query = `
		SELECT id, event_type, order_ref, payload, emitted_at
		FROM market_events
		ORDER BY emitted_at DESC
		LIMIT $1`

	rows, err := j.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			typ     string
			ref     int64
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ref, &payload, &ev.EmittedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &ev.Order); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event %s: %w", ev.ID, err)
		}
		ev.Type = domain.EventType(typ)
		ev.OrderRef = domain.OrderRef(ref)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent events: %w", err)
	}
	return events, nil
}
