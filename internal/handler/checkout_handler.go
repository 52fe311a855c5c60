package handler

import (
	"context"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/middleware"
	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// CheckoutService submits checkout forms.
type CheckoutService interface {
	Submit(ctx context.Context, token string, req *checkout.SubmitRequest) (*checkout.Result, error)
}

// AddressService manages a user's saved addresses.
type AddressService interface {
	List(ctx context.Context, token string) ([]model.Address, error)
	Create(ctx context.Context, token string, in *model.AddressInput, isDefault bool) (*model.Address, error)
	Update(ctx context.Context, token, id string, in *model.AddressInput, isDefault bool) (*model.Address, error)
	Delete(ctx context.Context, token, id string) error
	SetDefault(ctx context.Context, token, id string) error
}

// AddressBody is the address create and update payload.
type AddressBody struct {
	model.AddressInput
	IsDefault bool `json:"isDefault"`
}

// CheckoutHandler handles order submission and saved addresses.
type CheckoutHandler struct {
	checkout  CheckoutService
	addresses AddressService
	logger    zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(checkout CheckoutService, addresses AddressService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:  checkout,
		addresses: addresses,
		logger:    logger.With().Str("handler", "checkout").Logger(),
	}
}

// Submit handles POST /api/checkout requests.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	var req checkout.SubmitRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	req.SessionKey = id.SessionKey()
	if req.SessionKey == "" {
		req.SessionKey = "request:" + middleware.RequestIDFrom(r.Context())
	}

	result, err := h.checkout.Submit(r.Context(), id.Token, &req)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListAddresses handles GET /api/addresses requests.
func (h *CheckoutHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	addrs, err := h.addresses.List(r.Context(), id.Token)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}
	if addrs == nil {
		addrs = []model.Address{}
	}

	writeJSON(w, http.StatusOK, addrs)
}

// CreateAddress handles POST /api/addresses requests.
func (h *CheckoutHandler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	var body AddressBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	addr, err := h.addresses.Create(r.Context(), id.Token, &body.AddressInput, body.IsDefault)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, addr)
}

// UpdateAddress handles PUT /api/addresses/{id} requests.
func (h *CheckoutHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	var body AddressBody
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	addr, err := h.addresses.Update(r.Context(), id.Token, r.PathValue("id"), &body.AddressInput, body.IsDefault)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, addr)
}

// DeleteAddress handles DELETE /api/addresses/{id} requests.
func (h *CheckoutHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.addresses.Delete(r.Context(), id.Token, r.PathValue("id")); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultAddress handles POST /api/addresses/{id}/default requests.
func (h *CheckoutHandler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.addresses.SetDefault(r.Context(), id.Token, r.PathValue("id")); err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
