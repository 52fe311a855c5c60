package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/apiclient"
	"storefront/internal/middleware"
	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code and code.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, logger zerolog.Logger) {
	logger.Error().Str("error", message).Str("code", code).Int("status", status).Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: middleware.RequestIDFrom(r.Context()),
	})
}

// identityFor returns the caller identity. A request carrying an expired
// token is answered with 401 rather than served as a guest.
func identityFor(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (middleware.Identity, bool) {
	id := middleware.IdentityFrom(r.Context())
	if id.Expired {
		writeFailure(w, r, model.ErrSessionExpired, logger)
		return id, false
	}
	return id, true
}

// writeFailure maps an error from the checkout components to a response.
// API messages are passed through verbatim.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	resp := model.ErrorResponse{
		Error:     model.ErrCodeInternalError,
		Message:   apiclient.Message(err),
		Kind:      string(apiclient.Classify(err)),
		RequestID: middleware.RequestIDFrom(r.Context()),
	}
	status := statusFor(err)

	var (
		valErr    *model.ValidationError
		domainErr *model.DomainError
		apiErr    *apiclient.Error
	)
	switch {
	case errors.As(err, &valErr):
		resp.Error = valErr.Code
		resp.Message = valErr.Message
		resp.Field = valErr.Field
		if valErr.RedirectToCart {
			resp.Redirect = "/cart"
		}
	case errors.As(err, &domainErr):
		resp.Error = domainErr.Code
	case errors.As(err, &apiErr):
		resp.Error = model.ErrCodeAPIError
		if apiErr.Code != "" {
			resp.Error = apiErr.Code
		}
	case resp.Kind == string(model.KindNetwork):
		resp.Error = model.ErrCodeNetworkError
	}

	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Str("code", resp.Error).
		Str("kind", resp.Kind).
		Int("status", status).
		Str("path", r.URL.Path).
		Msg("request failed")

	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}

	switch {
	case errors.Is(err, model.ErrSubmitInProgress), errors.Is(err, model.ErrMutationInProgress):
		return http.StatusConflict
	}

	switch apiclient.Classify(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindRejection, model.KindInProgress:
		return http.StatusConflict
	case model.KindAuthRequired:
		return http.StatusUnauthorized
	case model.KindNetwork:
		return http.StatusGatewayTimeout
	case model.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// decodeJSON reads a JSON body, rejecting unknown garbage with INVALID_JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, logger zerolog.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", logger)
		return false
	}
	return true
}

// Health handles GET /health requests.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
