// Package checkout validates and submits new orders for authenticated users
// and guests.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/delivery"
	"storefront/internal/events"
	"storefront/internal/model"
	"storefront/internal/session"

	"github.com/jinzhu/copier"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// OrderGateway creates orders on the REST API.
type OrderGateway interface {
	CreateOrder(ctx context.Context, token string, req *model.CreateOrderRequest) (*model.Order, error)
}

// ProfileStore caches the contact details a visitor entered.
type ProfileStore interface {
	SaveProfile(key string, p session.Profile) session.Profile
}

// SubmitRequest is the checkout form.
type SubmitRequest struct {
	SessionKey       string              `json:"-"`
	Items            []CartItem          `json:"items"`
	DeliveryDate     string              `json:"deliveryDate"`
	DeliveryTimeSlot string              `json:"deliveryTimeSlot"`
	Contact          model.ContactInfo   `json:"contact"`
	AddressID        string              `json:"addressId,omitempty"`
	Address          *model.AddressInput `json:"address,omitempty"`
}

// Result is a successfully created order.
type Result struct {
	OrderID      string       `json:"orderId"`
	RedirectPath string       `json:"redirectPath"`
	AddressID    string       `json:"addressId,omitempty"`
	Order        *model.Order `json:"order"`
}

// Orchestrator runs the checkout submit path.
type Orchestrator struct {
	orders    OrderGateway
	addresses *AddressService
	validator *Validator
	profiles  ProfileStore
	bus       events.Publisher
	clock     clockwork.Clock
	loc       *time.Location
	logger    zerolog.Logger

	mu         sync.Mutex
	submitting map[string]struct{}
}

// NewOrchestrator creates an orchestrator. Delivery dates are read in loc.
func NewOrchestrator(
	orders OrderGateway,
	addresses *AddressService,
	validator *Validator,
	profiles ProfileStore,
	bus events.Publisher,
	clock clockwork.Clock,
	loc *time.Location,
	logger zerolog.Logger,
) *Orchestrator {
	if bus == nil {
		bus = events.Discard
	}
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{
		orders:     orders,
		addresses:  addresses,
		validator:  validator,
		profiles:   profiles,
		bus:        bus,
		clock:      clock,
		loc:        loc,
		logger:     logger.With().Str("service", "checkout").Logger(),
		submitting: make(map[string]struct{}),
	}
}

// Submit validates the form and creates the order. A non-empty token takes the
// authenticated path. Validation stops at the first violation and makes no API
// call; API errors are returned as received.
func (o *Orchestrator) Submit(ctx context.Context, token string, req *SubmitRequest) (*Result, error) {
	key := req.SessionKey
	if key == "" {
		key = token
	}
	release, err := o.acquire(key)
	if err != nil {
		return nil, err
	}
	defer release()

	normalizeContact(&req.Contact)

	if err := o.validate(req); err != nil {
		o.logger.Debug().Err(err).Msg("checkout validation failed")
		return nil, err
	}

	create := &model.CreateOrderRequest{
		DeliveryDate:     req.DeliveryDate,
		DeliveryTimeSlot: req.DeliveryTimeSlot,
	}

	guest := token == ""
	var addressID string

	if guest {
		if err := o.validator.Address(req.Address); err != nil {
			return nil, err
		}
		var addr model.GuestAddress
		if err := copier.Copy(&addr, req.Address); err != nil {
			return nil, fmt.Errorf("failed to map guest address: %w", err)
		}
		create.Address = &addr
		create.Name = req.Contact.Name
		create.Phone = req.Contact.Phone
		create.Email = req.Contact.Email
		create.Items = make([]model.OrderItemRequest, len(req.Items))
		for i, item := range req.Items {
			create.Items[i] = model.OrderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	} else {
		addressID, err = o.resolveAddress(ctx, token, req)
		if err != nil {
			return nil, err
		}
		create.AddressID = &addressID
	}

	order, err := o.orders.CreateOrder(ctx, token, create)
	if err != nil {
		o.logger.Warn().Err(err).Bool("guest", guest).Msg("failed to create order")
		return nil, err
	}

	o.profiles.SaveProfile(key, session.Profile{
		Name:  req.Contact.Name,
		Email: req.Contact.Email,
		Phone: req.Contact.Phone,
		Guest: guest,
	})

	o.bus.Publish(ctx, events.OrderCreated{OrderID: order.ID, Guest: guest})
	o.bus.Publish(ctx, events.CartUpdated{SessionKey: key, Count: 0})

	o.logger.Info().
		Str("order_id", order.ID).
		Bool("guest", guest).
		Str("delivery_date", req.DeliveryDate).
		Str("slot", req.DeliveryTimeSlot).
		Msg("order created")

	return &Result{
		OrderID:      order.ID,
		RedirectPath: model.OrderPath(order.ID),
		AddressID:    addressID,
		Order:        order,
	}, nil
}

func (o *Orchestrator) validate(req *SubmitRequest) error {
	if err := o.validator.Items(req.Items); err != nil {
		return err
	}

	if req.DeliveryDate == "" {
		return model.NewValidationError("deliveryDate", model.ErrCodeMissingField, "choose a delivery date")
	}
	date, err := delivery.ParseDate(req.DeliveryDate, o.loc)
	if err != nil {
		return model.NewValidationError("deliveryDate", model.ErrCodeInvalidField, "delivery date must be YYYY-MM-DD")
	}

	if req.DeliveryTimeSlot == "" {
		return model.NewValidationError("deliveryTimeSlot", model.ErrCodeMissingField, "choose a delivery time slot")
	}
	slot, err := delivery.ParseSlot(req.DeliveryTimeSlot)
	if err != nil {
		return model.NewValidationError("deliveryTimeSlot", model.ErrCodeInvalidField, err.Error())
	}
	if !delivery.IsSlotAvailable(slot, date, o.clock.Now().In(o.loc)) {
		return model.NewValidationError("deliveryTimeSlot", model.ErrCodeSlotUnavailable, model.ErrSlotUnavailable.Message)
	}

	return o.validator.Contact(req.Contact)
}

// resolveAddress returns the address id for an authenticated order: the one
// picked on the form, else a saved default, else one created from the inline
// fields.
func (o *Orchestrator) resolveAddress(ctx context.Context, token string, req *SubmitRequest) (string, error) {
	if req.AddressID != "" {
		return req.AddressID, nil
	}

	saved, err := o.addresses.List(ctx, token)
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to list addresses")
		return "", err
	}
	if addr, ok := pickAddress(saved); ok {
		return addr.ID, nil
	}

	addr, err := o.addresses.Create(ctx, token, req.Address, true)
	if err != nil {
		return "", err
	}
	return addr.ID, nil
}

func (o *Orchestrator) acquire(key string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.submitting[key]; busy {
		return nil, model.ErrSubmitInProgress
	}
	o.submitting[key] = struct{}{}

	return func() {
		o.mu.Lock()
		delete(o.submitting, key)
		o.mu.Unlock()
	}, nil
}

func normalizeContact(c *model.ContactInfo) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
}
