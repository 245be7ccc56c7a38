package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// defaultEventLimit bounds the events listing when no limit is given.
const defaultEventLimit = 50

// EventSource reads back journaled lifecycle events.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
}

// EventHandler serves the lifecycle event listing.
type EventHandler struct {
	source EventSource
}

// NewEventHandler creates an EventHandler over the given source.
func NewEventHandler(source EventSource) *EventHandler {
	return &EventHandler{source: source}
}

// Recent returns journaled events, newest first.
// GET /api/events?limit=N
func (h *EventHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	events, err := h.source.Recent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
