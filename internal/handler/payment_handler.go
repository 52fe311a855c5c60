package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/rs/zerolog"
)

// PaymentEngine drives the payment screen of an order.
type PaymentEngine interface {
	Open(ctx context.Context, token, orderID string) (payment.View, error)
	Initiate(ctx context.Context, token, orderID string) (payment.View, error)
	Refresh(ctx context.Context, token, orderID string) (payment.View, error)
	Cancel(ctx context.Context, token, orderID string) (payment.View, error)
	View(orderID string) payment.View
	Polling(orderID string) bool
	AutoOpenLink(v payment.View, d payment.Device) (model.DeepLink, time.Duration, bool)
	PaidRedirect(v payment.View) (string, time.Duration, bool)
}

// AutoOpen tells a mobile client which wallet to open and when.
type AutoOpen struct {
	Name    string `json:"name"`
	Link    string `json:"link"`
	DelayMs int64  `json:"delayMs"`
}

// Redirect tells the client where to go after showing a paid order.
type Redirect struct {
	Path    string `json:"path"`
	DelayMs int64  `json:"delayMs"`
}

// PaymentResponse is the payment screen state.
type PaymentResponse struct {
	payment.View
	Polling  bool      `json:"polling"`
	QRImage  string    `json:"qrImage,omitempty"`
	AutoOpen *AutoOpen `json:"autoOpen,omitempty"`
	Redirect *Redirect `json:"redirect,omitempty"`
}

// PaymentHandler handles payment screen requests.
type PaymentHandler struct {
	engine PaymentEngine
	qrSize int
	logger zerolog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(engine PaymentEngine, qrSize int, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		engine: engine,
		qrSize: qrSize,
		logger: logger.With().Str("handler", "payment").Logger(),
	}
}

// Open handles GET /api/orders/{id}/payment requests.
func (h *PaymentHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Open)
}

// Initiate handles POST /api/orders/{id}/payment/initiate requests.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Initiate)
}

// Refresh handles POST /api/orders/{id}/payment/refresh requests.
func (h *PaymentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Refresh)
}

// Cancel handles POST /api/orders/{id}/payment/cancel requests.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.engine.Cancel)
}

// QRCode handles GET /api/orders/{id}/payment/qr.png requests.
func (h *PaymentHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	view := h.engine.View(orderID)
	if view.Phase != payment.PhaseReady {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNoQRCode, "no payment QR code for this order", h.logger)
		return
	}

	png, err := payment.RenderQR(view.Invoice, h.qrSize)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type engineCall func(ctx context.Context, token, orderID string) (payment.View, error)

// respond runs an engine call. A call that fails while the view still carries
// an error is reported as the view itself so the screen can show the retry
// state; other failures are mapped to an error response.
func (h *PaymentHandler) respond(w http.ResponseWriter, r *http.Request, call engineCall) {
	orderID := r.PathValue("id")
	if orderID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "order ID is required", h.logger)
		return
	}

	id, ok := identityFor(w, r, h.logger)
	if !ok {
		return
	}

	view, err := call(r.Context(), id.Token, orderID)
	if err != nil && (view.Phase != payment.PhaseError || errors.Is(err, model.ErrOrderTerminal)) {
		writeFailure(w, r, err, h.logger)
		return
	}

	resp := PaymentResponse{
		View:    view,
		Polling: h.engine.Polling(orderID),
	}
	if view.Phase == payment.PhaseReady && view.Invoice.HasQR() {
		resp.QRImage = "/api/orders/" + orderID + "/payment/qr.png"
	}
	if link, delay, ok := h.engine.AutoOpenLink(view, payment.DetectDevice(r.UserAgent())); ok {
		resp.AutoOpen = &AutoOpen{Name: link.Name, Link: link.Link, DelayMs: delay.Milliseconds()}
	}
	if path, delay, ok := h.engine.PaidRedirect(view); ok {
		resp.Redirect = &Redirect{Path: path, DelayMs: delay.Milliseconds()}
	}

	writeJSON(w, http.StatusOK, resp)
}
