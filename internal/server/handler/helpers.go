// Package handler contains the HTTP handlers for the marketplace API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the JSON shape of every error response. Reason carries the
// transfer failure sub-code when one applies.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// writeDomainError maps a settlement error to an HTTP status and body.
func writeDomainError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}

	var transferErr *domain.TransferError
	if errors.As(err, &transferErr) {
		body.Reason = string(transferErr.Reason)
		writeJSON(w, http.StatusConflict, body)
		return
	}

	writeJSON(w, statusFor(err), body)
}

// statusFor picks the HTTP status for a domain error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCollectionNotFound),
		errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSenderNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCollectionNotNFT):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOrderAlreadyListed),
		errors.Is(err, domain.ErrTokenNotApproved),
		errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeBadRequest reports an input validation failure.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// pathUint32 parses a numeric path parameter.
func pathUint32(r *http.Request, name string) (uint32, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
