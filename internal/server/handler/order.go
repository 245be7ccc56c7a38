package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/abdulgalimov/unique-market/internal/domain"
	"github.com/abdulgalimov/unique-market/internal/market"
)

// MarketService is the slice of the settlement engine the order handlers
// use.
type MarketService interface {
	List(ctx context.Context, req market.ListRequest) (domain.OrderRef, error)
	CheckApproved(ctx context.Context, collectionID, tokenID uint32) error
	Buy(ctx context.Context, req market.BuyRequest) error
	GetOrder(ctx context.Context, collectionID, tokenID uint32) (domain.Order, domain.OrderRef, error)
}

// OrderHandler serves the order lifecycle endpoints.
type OrderHandler struct {
	svc MarketService
}

// NewOrderHandler creates an OrderHandler over the given service.
func NewOrderHandler(svc MarketService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// listRequest is the POST /api/orders body. Price is a decimal string so
// large values survive the JSON boundary.
type listRequest struct {
	CollectionID uint32 `json:"collection_id"`
	TokenID      uint32 `json:"token_id"`
	Price        string `json:"price"`
	Amount       uint32 `json:"amount"`
	Seller       string `json:"seller"`
}

// List places a token up for sale.
// POST /api/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	price, ok := new(big.Int).SetString(req.Price, 10)
	if !ok {
		writeBadRequest(w, "price must be a decimal string")
		return
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	ref, err := h.svc.List(r.Context(), market.ListRequest{
		CollectionID: req.CollectionID,
		TokenID:      req.TokenID,
		Price:        price,
		Amount:       amount,
		Seller:       req.Seller,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"order_ref": ref})
}

// Get returns the active order for a token.
// GET /api/orders/{collection}/{token}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	collectionID, tokenID, ok := tokenPath(w, r)
	if !ok {
		return
	}

	order, ref, err := h.svc.GetOrder(r.Context(), collectionID, tokenID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_ref": ref,
		"order":     order,
	})
}

// CheckApproved re-validates the marketplace's transfer approval for a
// listed token.
// POST /api/orders/{collection}/{token}/check-approved
func (h *OrderHandler) CheckApproved(w http.ResponseWriter, r *http.Request) {
	collectionID, tokenID, ok := tokenPath(w, r)
	if !ok {
		return
	}

	if err := h.svc.CheckApproved(r.Context(), collectionID, tokenID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approved": true})
}

// buyRequest is the buy endpoint body. Payment is the full attached amount;
// any surplus over the order price comes back to the buyer.
type buyRequest struct {
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"`
}

// Buy settles a purchase.
// POST /api/orders/{collection}/{token}/buy
func (h *OrderHandler) Buy(w http.ResponseWriter, r *http.Request) {
	collectionID, tokenID, ok := tokenPath(w, r)
	if !ok {
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	payment, okPrice := new(big.Int).SetString(req.Payment, 10)
	if !okPrice {
		writeBadRequest(w, "payment must be a decimal string")
		return
	}

	err := h.svc.Buy(r.Context(), market.BuyRequest{
		CollectionID: collectionID,
		TokenID:      tokenID,
		Buyer:        req.Buyer,
		Payment:      payment,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "purchased"})
}

// tokenPath parses the {collection}/{token} path parameters, writing a 400
// on failure.
func tokenPath(w http.ResponseWriter, r *http.Request) (collectionID, tokenID uint32, ok bool) {
	collectionID, err := pathUint32(r, "collection")
	if err != nil {
		writeBadRequest(w, "collection must be a positive integer")
		return 0, 0, false
	}
	tokenID, err = pathUint32(r, "token")
	if err != nil {
		writeBadRequest(w, "token must be a positive integer")
		return 0, 0, false
	}
	return collectionID, tokenID, true
}
