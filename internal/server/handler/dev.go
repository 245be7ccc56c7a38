package handler

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/abdulgalimov/unique-market/internal/payment"
	"github.com/abdulgalimov/unique-market/internal/registry/local"
)

// DevHandler serves the standalone-mode development endpoints: minting
// tokens in the local registry, approving the marketplace operator, and
// funding ledger accounts. Never registered in full mode.
type DevHandler struct {
	registry *local.Registry
	ledger   *payment.Ledger
	operator string
}

// NewDevHandler creates a DevHandler over the local registry and ledger.
func NewDevHandler(registry *local.Registry, ledger *payment.Ledger, operator string) *DevHandler {
	return &DevHandler{registry: registry, ledger: ledger, operator: operator}
}

// Mint creates a token in the local registry.
// POST /api/dev/mint
func (h *DevHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionID uint32 `json:"collection_id"`
		TokenID      uint32 `json:"token_id"`
		Owner        string `json:"owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeBadRequest(w, "collection_id, token_id and owner are required")
		return
	}

	h.registry.Mint(req.CollectionID, req.TokenID, req.Owner)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "minted"})
}

// Approve grants the marketplace operator a transfer allowance on a token.
// POST /api/dev/approve
func (h *DevHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionID uint32 `json:"collection_id"`
		TokenID      uint32 `json:"token_id"`
		Amount       uint32 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	if err := h.registry.Approve(req.CollectionID, req.TokenID, h.operator, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// Deposit funds a ledger account.
// POST /api/dev/deposit
func (h *DevHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeBadRequest(w, "account and amount are required")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeBadRequest(w, "amount must be a decimal string")
		return
	}

	if err := h.ledger.Deposit(r.Context(), req.Account, amount); err != nil {
		writeDomainError(w, err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), req.Account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}
