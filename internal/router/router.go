package router

import (
	"net/http"

	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/middleware"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Handlers groups the HTTP handlers the router serves.
type Handlers struct {
	Checkout *handler.CheckoutHandler
	Delivery *handler.DeliveryHandler
	Payment  *handler.PaymentHandler
	Session  *handler.SessionHandler
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, bus events.Publisher, clock clockwork.Clock, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)

	mux.HandleFunc("POST /api/auth/login", h.Session.Login)
	mux.HandleFunc("GET /api/session", h.Session.Session)
	mux.HandleFunc("POST /api/session/reset", h.Session.StartReset)

	mux.HandleFunc("POST /api/checkout", h.Checkout.Submit)
	mux.HandleFunc("GET /api/addresses", h.Checkout.ListAddresses)
	mux.HandleFunc("POST /api/addresses", h.Checkout.CreateAddress)
	mux.HandleFunc("PUT /api/addresses/{id}", h.Checkout.UpdateAddress)
	mux.HandleFunc("DELETE /api/addresses/{id}", h.Checkout.DeleteAddress)
	mux.HandleFunc("POST /api/addresses/{id}/default", h.Checkout.SetDefaultAddress)

	mux.HandleFunc("GET /api/delivery/slots", h.Delivery.Slots)

	mux.HandleFunc("GET /api/orders/{id}/payment", h.Payment.Open)
	mux.HandleFunc("POST /api/orders/{id}/payment/initiate", h.Payment.Initiate)
	mux.HandleFunc("POST /api/orders/{id}/payment/refresh", h.Payment.Refresh)
	mux.HandleFunc("POST /api/orders/{id}/payment/cancel", h.Payment.Cancel)
	mux.HandleFunc("GET /api/orders/{id}/payment/qr.png", h.Payment.QRCode)

	// Apply middleware in order: Recovery -> RequestID -> Logging -> CORS -> BearerToken
	var handler http.Handler = mux
	handler = middleware.BearerToken(bus, clock, logger)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}
