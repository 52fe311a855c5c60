package payment

import (
	"context"
	"sync"
	"time"

	"storefront/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Engine ties the controller to status polling: opening an order screen
// loads the order, applies the automatic initiation policy and keeps one
// poll running per open order until it settles.
type Engine struct {
	gateway Gateway
	ctrl    *Controller
	poller  *Poller
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewEngine creates an engine. Close releases its pollers.
func NewEngine(gateway Gateway, ctrl *Controller, poller *Poller, logger zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		gateway: gateway,
		ctrl:    ctrl,
		poller:  poller,
		logger:  logger.With().Str("component", "payment-engine").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]*Subscription),
	}
}

// Controller returns the underlying state machine.
func (e *Engine) Controller() *Controller {
	return e.ctrl
}

// Open loads an order and its payment status together, reconciles them and
// runs the automatic initiation policy.
func (e *Engine) Open(ctx context.Context, token, orderID string) (View, error) {
	var (
		order  *model.Order
		status *model.PaymentStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := e.gateway.GetOrder(gctx, token, orderID)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	g.Go(func() error {
		s, err := e.gateway.GetPaymentStatus(gctx, token, orderID)
		if err != nil {
			// No invoice yet is a normal state for the status projection.
			e.logger.Debug().Err(err).Str("order_id", orderID).Msg("payment status unavailable on open")
			return nil
		}
		status = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return e.ctrl.View(orderID), err
	}

	if status != nil {
		e.ctrl.ObserveStatus(orderID, *status)
	}

	view, _, err := e.ctrl.AutoInitiate(ctx, token, order)
	if shouldPoll(view) || (order.InvoiceID != "" && !view.Status.IsTerminal()) {
		e.ensurePolling(token, orderID)
	}
	return view, err
}

// Initiate requests an invoice on explicit user action. An order the
// controller holds no state for is loaded first, so a settled order is never
// sent to the gateway again.
func (e *Engine) Initiate(ctx context.Context, token, orderID string) (View, error) {
	if !e.ctrl.Known(orderID) {
		order, err := e.gateway.GetOrder(ctx, token, orderID)
		if err != nil {
			return e.ctrl.View(orderID), err
		}
		e.ctrl.ObserveOrder(order)
	}

	view, err := e.ctrl.Initiate(ctx, token, orderID)
	if shouldPoll(view) {
		e.ensurePolling(token, orderID)
	}
	return view, err
}

// Refresh fetches the payment status on demand, sharing a fetch already in
// flight for the order.
func (e *Engine) Refresh(ctx context.Context, token, orderID string) (View, error) {
	var (
		status *model.PaymentStatus
		err    error
	)
	if sub := e.subscription(orderID); sub != nil {
		status, err = sub.Refresh(ctx)
	} else {
		status, err = e.gateway.GetPaymentStatus(ctx, token, orderID)
	}
	if err != nil {
		return e.ctrl.View(orderID), err
	}
	return e.ctrl.ObserveStatus(orderID, *status), nil
}

// Cancel cancels the order's payment and stops its poll on success.
func (e *Engine) Cancel(ctx context.Context, token, orderID string) (View, error) {
	view, err := e.ctrl.Cancel(ctx, token, orderID)
	if err == nil {
		e.stopPolling(orderID)
	}
	return view, err
}

// AutoOpenLink returns the wallet link a device should open for v, and how
// long to wait before opening it.
func (e *Engine) AutoOpenLink(v View, d Device) (model.DeepLink, time.Duration, bool) {
	link, ok := e.ctrl.AutoOpenLink(v, d)
	return link, e.ctrl.DeepLinkDelay(), ok
}

// PaidRedirect returns where a screen showing v goes after payment succeeds.
func (e *Engine) PaidRedirect(v View) (string, time.Duration, bool) {
	return e.ctrl.PaidRedirect(v)
}

// View returns the current state of an order.
func (e *Engine) View(orderID string) View {
	return e.ctrl.View(orderID)
}

// Polling reports whether a status poll is running for orderID.
func (e *Engine) Polling(orderID string) bool {
	return e.subscription(orderID) != nil
}

// Sweep drops idle controller state.
func (e *Engine) Sweep(maxIdle time.Duration) int {
	return e.ctrl.Sweep(maxIdle)
}

// Close stops every poll and waits for them to exit.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

func shouldPoll(v View) bool {
	if v.Status.IsTerminal() {
		return false
	}
	switch v.Phase {
	case PhaseInitiating, PhaseReady, PhaseAlreadyInProgress:
		return true
	}
	return false
}

func (e *Engine) subscription(orderID string) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subs[orderID]
}

func (e *Engine) ensurePolling(token, orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx.Err() != nil {
		return
	}
	if _, ok := e.subs[orderID]; ok {
		return
	}

	sub := e.poller.Start(e.ctx, token, orderID)
	e.subs[orderID] = sub

	e.wg.Add(1)
	go e.forward(sub)
}

func (e *Engine) stopPolling(orderID string) {
	e.mu.Lock()
	sub := e.subs[orderID]
	delete(e.subs, orderID)
	e.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}

// forward feeds polled statuses into the controller until the poll ends.
func (e *Engine) forward(sub *Subscription) {
	defer e.wg.Done()

	orderID := sub.OrderID()
	for {
		select {
		case status := <-sub.Updates():
			e.ctrl.ObserveStatus(orderID, status)
		case <-sub.Done():
			select {
			case status := <-sub.Updates():
				e.ctrl.ObserveStatus(orderID, status)
			default:
			}

			e.mu.Lock()
			if e.subs[orderID] == sub {
				delete(e.subs, orderID)
			}
			e.mu.Unlock()

			e.logger.Debug().Str("order_id", orderID).Str("reason", sub.StopReason()).Msg("payment poll ended")
			return
		}
	}
}
