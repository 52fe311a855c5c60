package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/events"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Headers read from the storefront UI.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderGuestID   = "X-Guest-ID"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

// Identity is who is calling: a bearer token holder, a guest, or both
// unknown.
type Identity struct {
	Token   string
	Subject string
	GuestID string
	Expired bool
}

// Authenticated reports whether a usable bearer token was sent.
func (i Identity) Authenticated() bool {
	return i.Token != "" && !i.Expired
}

// SessionKey identifies the visitor across requests.
func (i Identity) SessionKey() string {
	switch {
	case i.Subject != "":
		return "user:" + i.Subject
	case i.Token != "":
		return "token:" + i.Token
	case i.GuestID != "":
		return "guest:" + i.GuestID
	}
	return ""
}

// IdentityFrom returns the caller identity stored by BearerToken.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// RequestIDFrom returns the request id stored by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// CORS adds CORS headers to the response.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Guest-ID, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// BearerToken extracts the caller identity. Tokens are verified by the REST
// API; here the claims are only read to spot an expired session, which is
// announced as auth required and flagged on the identity. The token is kept
// so the request is never mistaken for a guest one.
func BearerToken(bus events.Publisher, clock clockwork.Clock, logger zerolog.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{GuestID: strings.TrimSpace(r.Header.Get(HeaderGuestID))}

			if token, ok := bearer(r.Header.Get("Authorization")); ok {
				id.Token = token

				claims := jwt.MapClaims{}
				if _, _, err := parser.ParseUnverified(token, claims); err != nil {
					logger.Debug().Err(err).Str("path", r.URL.Path).Msg("opaque bearer token")
				} else {
					id.Subject, _ = claims.GetSubject()
					if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !clock.Now().Before(exp.Time) {
						logger.Info().Str("path", r.URL.Path).Str("subject", id.Subject).Msg("bearer token expired")
						bus.Publish(r.Context(), events.AuthRequired{Path: r.URL.Path, Reason: "token expired"})
						id.Expired = true
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		})
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// Logging logs HTTP requests with timing information.
func Logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response writer wrapper to capture status code
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", RequestIDFrom(r.Context())).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error().
						Interface("panic", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("request_id", RequestIDFrom(r.Context())).
						Msg("panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"INTERNAL_ERROR","message":"internal server error"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
