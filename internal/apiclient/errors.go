package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"storefront/internal/model"
)

// Error is a normalised non-2xx response from the REST API.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	return e.Message
}

// InProgress reports whether the API says an invoice is already being created
// for the order. The structured code wins; the message match is a fallback for
// deployments that only send text.
func (e *Error) InProgress() bool {
	if e.Code == model.ErrCodePaymentInProgress {
		return true
	}
	if e.Code != "" {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "already") &&
		!strings.Contains(msg, "paid") &&
		!strings.Contains(msg, "cancel")
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// decodeError builds an *Error, preferring the API supplied message.
func decodeError(status int, body []byte, requestID string) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	msg := strings.TrimSpace(eb.Message)
	if msg == "" {
		msg = strings.TrimSpace(eb.Error)
	}
	if msg == "" {
		msg = fallbackMessage(status)
	}

	return &Error{
		Status:    status,
		Code:      eb.Code,
		Message:   msg,
		RequestID: requestID,
	}
}

func fallbackMessage(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication required"
	case status == http.StatusNotFound:
		return "not found"
	case status == http.StatusConflict:
		return "order already paid or cancelled"
	case status >= 500:
		return model.ErrPaymentUnconfigured.Message
	default:
		return fmt.Sprintf("request failed with status %d", status)
	}
}

// Classify maps any error returned by the checkout components to a kind used
// for retry decisions and presentation.
func Classify(err error) model.ErrorKind {
	if err == nil {
		return model.KindNone
	}

	var (
		apiErr    *Error
		domainErr *model.DomainError
		valErr    *model.ValidationError
		netErr    net.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		return model.KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return model.KindNetwork
	case errors.As(err, &valErr):
		return model.KindValidation
	case errors.As(err, &domainErr):
		return domainErr.Kind
	case errors.As(err, &apiErr):
		switch {
		case apiErr.InProgress():
			return model.KindInProgress
		case apiErr.Status == http.StatusUnauthorized:
			return model.KindAuthRequired
		case apiErr.Status >= 500:
			return model.KindFault
		default:
			return model.KindRejection
		}
	case errors.As(err, &netErr):
		return model.KindNetwork
	default:
		return model.KindFault
	}
}

// Message returns the text a UI should show for err: the API message
// verbatim for rejections, a fixed "contact support" text for server faults,
// otherwise a fallback keyed by kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if Classify(err) == model.KindFault {
			return model.ErrPaymentUnconfigured.Message
		}
		return apiErr.Message
	}
	switch Classify(err) {
	case model.KindNetwork:
		return "network error, please try again"
	case model.KindCanceled:
		return "request cancelled"
	}
	return err.Error()
}
