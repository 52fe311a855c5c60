package model

import "fmt"

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Redirect  string `json:"redirect,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidField         = "INVALID_FIELD"
	ErrCodeEmptyCart            = "EMPTY_CART"
	ErrCodeSlotUnavailable      = "SLOT_UNAVAILABLE"
	ErrCodeOrderTerminal        = "ORDER_TERMINAL"
	ErrCodeNoQRCode             = "NO_QR_CODE"
	ErrCodeAuthRequired         = "AUTH_REQUIRED"
	ErrCodeSubmitInProgress     = "SUBMIT_IN_PROGRESS"
	ErrCodeMutationInProgress   = "MUTATION_IN_PROGRESS"
	ErrCodePaymentInProgress    = "PAYMENT_ALREADY_IN_PROGRESS"
	ErrCodeOrderAlreadySettled  = "ORDER_ALREADY_PAID_OR_CANCELLED"
	ErrCodePaymentMisconfigured = "PAYMENT_NOT_CONFIGURED"
	ErrCodeAPIError             = "API_ERROR"
	ErrCodeNetworkError         = "NETWORK_ERROR"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// ErrorKind classifies an error for retry and presentation decisions.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindValidation   ErrorKind = "validation"
	KindRejection    ErrorKind = "rejection"
	KindFault        ErrorKind = "fault"
	KindInProgress   ErrorKind = "in_progress"
	KindAuthRequired ErrorKind = "auth_required"
	KindNetwork      ErrorKind = "network"
	KindCanceled     ErrorKind = "canceled"
)

// Retryable reports whether an explicit user retry makes sense.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindFault, KindNetwork, KindCanceled, KindInProgress:
		return true
	}
	return false
}

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
	Kind    ErrorKind
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, kind ErrorKind) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// Common domain errors
var (
	ErrOrderTerminal       = NewDomainError(ErrCodeOrderTerminal, "order is already paid or cancelled", KindRejection)
	ErrNoQRCode            = NewDomainError(ErrCodeNoQRCode, "payment gateway returned no QR code", KindFault)
	ErrAuthRequired        = NewDomainError(ErrCodeAuthRequired, "authentication required", KindAuthRequired)
	ErrSessionExpired      = NewDomainError(ErrCodeAuthRequired, "session expired, please sign in again", KindAuthRequired)
	ErrSlotUnavailable     = NewDomainError(ErrCodeSlotUnavailable, "delivery time slot is no longer available", KindValidation)
	ErrSubmitInProgress    = NewDomainError(ErrCodeSubmitInProgress, "order submission already in progress", KindValidation)
	ErrMutationInProgress  = NewDomainError(ErrCodeMutationInProgress, "address change already in progress", KindValidation)
	ErrInitiationInFlight  = NewDomainError(ErrCodePaymentInProgress, "payment initiation already in progress", KindInProgress)
	ErrPaymentUnconfigured = NewDomainError(ErrCodePaymentMisconfigured, "payment system unavailable, please contact support", KindFault)
)

// ValidationError is a local input violation caught before any network call.
type ValidationError struct {
	Field          string
	Code           string
	Message        string
	RedirectToCart bool
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}
