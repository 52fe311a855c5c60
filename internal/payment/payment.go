// Package payment drives the order payment lifecycle on the client side: it
// obtains one QR invoice per order, polls settlement status, handles
// cancellation and reconciles both status sources into one effective status.
package payment

import (
	"context"
	"strings"

	"storefront/internal/model"
)

// StatusFetcher reads the polled payment projection.
type StatusFetcher interface {
	GetPaymentStatus(ctx context.Context, token, orderID string) (*model.PaymentStatus, error)
}

// Gateway is the part of the REST API the payment lifecycle calls.
type Gateway interface {
	StatusFetcher
	GetOrder(ctx context.Context, token, orderID string) (*model.Order, error)
	InitiatePayment(ctx context.Context, token, orderID string) (*model.PaymentInvoice, error)
	CancelPayment(ctx context.Context, token, orderID string) error
}

// AttemptRecorder keeps an audit trail of initiation attempts. Failures to
// record are logged and never change the payment flow.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *model.PaymentAttempt) error
	CompleteAttempt(ctx context.Context, attempt *model.PaymentAttempt) error
	RecordTerminal(ctx context.Context, orderID string, status model.OrderStatus) error
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(context.Context, *model.PaymentAttempt) error      { return nil }
func (nopRecorder) CompleteAttempt(context.Context, *model.PaymentAttempt) error    { return nil }
func (nopRecorder) RecordTerminal(context.Context, string, model.OrderStatus) error { return nil }

// Navigator opens a deep link on the user's device.
type Navigator interface {
	Open(orderID string, link model.DeepLink)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(orderID string, link model.DeepLink)

func (f NavigatorFunc) Open(orderID string, link model.DeepLink) { f(orderID, link) }

// Device describes the viewer of a payment screen.
type Device struct {
	Mobile   bool
	Platform string
}

// DetectDevice classifies a User-Agent header.
func DetectDevice(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "android"):
		return Device{Mobile: true, Platform: "android"}
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return Device{Mobile: true, Platform: "ios"}
	case strings.Contains(ua, "mobile"):
		return Device{Mobile: true, Platform: "other"}
	}
	return Device{Platform: "desktop"}
}

// SelectWalletLink returns the first deep link whose name matches one of the
// wallet identifiers, compared case-insensitively with spaces removed.
func SelectWalletLink(links []model.DeepLink, apps []string) (model.DeepLink, bool) {
	for _, link := range links {
		name := normalizeName(link.Name)
		if name == "" || link.Link == "" {
			continue
		}
		for _, app := range apps {
			if app = normalizeName(app); app != "" && strings.Contains(name, app) {
				return link, true
			}
		}
	}
	return model.DeepLink{}, false
}

func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// EffectiveStatus reconciles the order status and the payment status
// projection: the most terminal value wins, PAID over CANCELLED over PENDING.
func EffectiveStatus(statuses ...model.OrderStatus) model.OrderStatus {
	best := model.OrderStatusPending
	for _, s := range statuses {
		if statusRank(s) > statusRank(best) {
			best = s
		}
	}
	return best
}

func statusRank(s model.OrderStatus) int {
	switch s {
	case model.OrderStatusPaid:
		return 2
	case model.OrderStatusCancelled:
		return 1
	}
	return 0
}
