package model

import (
	"time"

	"github.com/google/uuid"
)

// DeepLink opens a bank or wallet application on a pre-filled payment screen.
type DeepLink struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Logo        string `json:"logo"`
	Link        string `json:"link"`
}

// PaymentInvoice is the client-held projection of a gateway invoice.
// It lives in memory only.
type PaymentInvoice struct {
	OrderID   string     `json:"orderId"`
	InvoiceID string     `json:"invoiceId,omitempty"`
	QRCode    string     `json:"qrCode,omitempty"`
	QRText    string     `json:"qrText,omitempty"`
	URLs      []DeepLink `json:"urls"`
	WebURL    string     `json:"webUrl,omitempty"`
}

// HasQR reports whether the gateway sent a QR code. QRText alone does not
// count; it only helps render a code the gateway already issued.
func (i *PaymentInvoice) HasQR() bool {
	return i != nil && i.QRCode != ""
}

// PaymentStatus is the polled projection of GET /orders/{id}/payment/status.
type PaymentStatus struct {
	PaymentStatus     OrderStatus `json:"paymentStatus"`
	ShouldStopPolling bool        `json:"shouldStopPolling"`
}

// PaymentAttempt is one ledger row describing an initiation attempt.
type PaymentAttempt struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	OrderID   string     `json:"orderId" db:"order_id"`
	Attempt   int        `json:"attempt" db:"attempt"`
	Recovery  bool       `json:"recovery" db:"recovery"`
	Outcome   string     `json:"outcome" db:"outcome"`
	Error     string     `json:"error,omitempty" db:"error"`
	StartedAt time.Time  `json:"startedAt" db:"started_at"`
	SettledAt *time.Time `json:"settledAt,omitempty" db:"settled_at"`
}

// Attempt outcomes recorded in the ledger.
const (
	AttemptOutcomePending    = "pending"
	AttemptOutcomeReady      = "ready"
	AttemptOutcomeFailed     = "failed"
	AttemptOutcomeInProgress = "in_progress"
)
