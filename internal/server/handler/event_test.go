package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

type fakeEventSource struct {
	events    []domain.Event
	gotLimit  int
	returnErr error
}

func (f *fakeEventSource) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	f.gotLimit = limit
	return f.events, f.returnErr
}

func TestRecentEvents(t *testing.T) {
	source := &fakeEventSource{events: []domain.Event{
		{ID: "a", Type: domain.EventTokenListed, OrderRef: 1},
	}}
	h := NewEventHandler(source)

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, source.gotLimit)

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, domain.EventTokenListed, resp.Events[0].Type)
}

func TestRecentEventsDefaultLimit(t *testing.T) {
	source := &fakeEventSource{}
	h := NewEventHandler(source)

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultEventLimit, source.gotLimit)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestRecentEventsBadLimit(t *testing.T) {
	h := NewEventHandler(&fakeEventSource{})

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=zero", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
