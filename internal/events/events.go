// Package events carries session-scoped notifications between the checkout
// components ("auth required", "cart updated", payment progress) as typed
// messages instead of ambient globals.
package events

import (
	"context"
	"sync"

	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// Name identifies an event type.
type Name string

const (
	NameAuthRequired  Name = "auth.required"
	NameCartUpdated   Name = "cart.updated"
	NameOrderCreated  Name = "order.created"
	NamePaymentStatus Name = "payment.status"
	NamePaymentPhase  Name = "payment.phase"
	NameDeepLink      Name = "payment.deeplink"
	NamePaymentPaid   Name = "payment.paid"
)

// Event is a typed message with a fixed name.
type Event interface {
	EventName() Name
}

// AuthRequired is raised when a call needs a bearer token the session lacks.
type AuthRequired struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (AuthRequired) EventName() Name { return NameAuthRequired }

// CartUpdated is raised when the cart contents change.
type CartUpdated struct {
	SessionKey string `json:"sessionKey"`
	Count      int    `json:"count"`
}

func (CartUpdated) EventName() Name { return NameCartUpdated }

// OrderCreated is raised after a successful checkout submission.
type OrderCreated struct {
	OrderID string `json:"orderId"`
	Guest   bool   `json:"guest"`
}

func (OrderCreated) EventName() Name { return NameOrderCreated }

// PaymentStatusChanged carries a freshly observed payment status.
type PaymentStatusChanged struct {
	OrderID           string            `json:"orderId"`
	Status            model.OrderStatus `json:"status"`
	ShouldStopPolling bool              `json:"shouldStopPolling"`
	Source            string            `json:"source"`
}

func (PaymentStatusChanged) EventName() Name { return NamePaymentStatus }

// PaymentPhaseChanged carries an initiation state machine transition.
type PaymentPhaseChanged struct {
	OrderID string `json:"orderId"`
	Phase   string `json:"phase"`
	Error   string `json:"error,omitempty"`
}

func (PaymentPhaseChanged) EventName() Name { return NamePaymentPhase }

// DeepLinkOpened asks a mobile client to open a wallet application.
type DeepLinkOpened struct {
	OrderID string `json:"orderId"`
	Name    string `json:"name"`
	Link    string `json:"link"`
}

func (DeepLinkOpened) EventName() Name { return NameDeepLink }

// PaymentPaid tells screens showing a paid order to move on, once the
// success state has had time to render.
type PaymentPaid struct {
	OrderID      string `json:"orderId"`
	RedirectPath string `json:"redirectPath"`
}

func (PaymentPaid) EventName() Name { return NamePaymentPaid }

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler receives published events.
type Handler func(ctx context.Context, e Event)

// Bus is an in-process publish/subscribe hub. Handlers run synchronously on
// the publishing goroutine and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Name]map[int]Handler
	logger zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[Name]map[int]Handler),
		logger: logger.With().Str("component", "event-bus").Logger(),
	}
}

// Subscribe registers h for events named name and returns its cancel func.
func (b *Bus) Subscribe(name Name, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[name] == nil {
		b.subs[name] = make(map[int]Handler)
	}
	b.subs[name][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[name], id)
	}
}

// Publish delivers e to every current subscriber of its name.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.EventName()]))
	for _, h := range b.subs[e.EventName()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, e)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event", string(e.EventName())).
				Msg("event handler panicked")
		}
	}()
	h(ctx, e)
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}
