package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apiclient"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/session"

	"github.com/rs/zerolog"
)

// resetFlagTTL bounds how long a started password reset is remembered.
const resetFlagTTL = 10 * time.Minute

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, phone, pin string) (*apiclient.AuthToken, error)
}

// SessionStore is the per-visitor profile and flag store.
type SessionStore interface {
	Profile(key string) (session.Profile, bool)
	SetFlag(key, name, value string, ttl time.Duration)
	Flag(key, name string) (string, bool)
}

// LoginRequest is the login form.
type LoginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

// ResetRequest starts a password reset for a phone number.
type ResetRequest struct {
	Phone string `json:"phone"`
}

// SessionResponse is what the client knows about the current visitor.
type SessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Expired       bool             `json:"expired"`
	Profile       *session.Profile `json:"profile,omitempty"`
	ResetPhone    string           `json:"resetPhone,omitempty"`
}

// SessionHandler handles login and session state requests.
type SessionHandler struct {
	auth   Authenticator
	store  SessionStore
	logger zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(auth Authenticator, store SessionStore, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		auth:   auth,
		store:  store,
		logger: logger.With().Str("handler", "session").Logger(),
	}
}

// Login handles POST /api/auth/login requests.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)
	switch {
	case req.Phone == "":
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "phone is required", h.logger)
		return
	case req.PIN == "":
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "pin is required", h.logger)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Phone, req.PIN)
	if err != nil {
		writeFailure(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// Session handles GET /api/session requests.
func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	resp := SessionResponse{
		Authenticated: id.Authenticated(),
		Expired:       id.Expired,
	}

	if key := id.SessionKey(); key != "" {
		if p, ok := h.store.Profile(key); ok {
			resp.Profile = &p
		}
		resp.ResetPhone, _ = h.store.Flag(key, session.FlagResetPhone)
	}

	writeJSON(w, http.StatusOK, resp)
}

// StartReset handles POST /api/session/reset requests. The phone number is
// kept for the session so the verification step can prefill it.
func (h *SessionHandler) StartReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	key := middleware.IdentityFrom(r.Context()).SessionKey()
	if key == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "guest id is required", h.logger)
		return
	}
	if req.Phone = strings.TrimSpace(req.Phone); req.Phone == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingField, "phone is required", h.logger)
		return
	}

	h.store.SetFlag(key, session.FlagResetPhone, req.Phone, resetFlagTTL)
	w.WriteHeader(http.StatusNoContent)
}
