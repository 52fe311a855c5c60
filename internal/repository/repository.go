package repository

import (
	"context"

	"storefront/internal/model"
)

// AttemptRepository defines data access for the payment attempt ledger.
type AttemptRepository interface {
	// RecordAttempt inserts an attempt when its request is sent.
	RecordAttempt(ctx context.Context, attempt *model.PaymentAttempt) error

	// CompleteAttempt stores the outcome of a settled attempt.
	CompleteAttempt(ctx context.Context, attempt *model.PaymentAttempt) error

	// RecordTerminal stores the terminal status an order reached. PAID is
	// never overwritten.
	RecordTerminal(ctx context.Context, orderID string, status model.OrderStatus) error

	// ListByOrder returns an order's attempts, oldest first.
	ListByOrder(ctx context.Context, orderID string) ([]model.PaymentAttempt, error)

	// TerminalStatus returns the recorded terminal status of an order.
	TerminalStatus(ctx context.Context, orderID string) (model.OrderStatus, bool, error)
}
