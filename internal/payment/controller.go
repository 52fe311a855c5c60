package payment

import (
	"context"
	"sync"
	"time"

	"storefront/internal/apiclient"
	"storefront/internal/events"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	recordTimeout = 5 * time.Second

	// settledRetention is how long the final status of a swept order is kept.
	// Past it, callers reload the order before acting on it.
	settledRetention = 24 * time.Hour
)

// ControllerConfig tunes the payment controller's timing and wallet matching.
type ControllerConfig struct {
	InProgressBackoff time.Duration
	PaidRedirectDelay time.Duration
	DeepLinkDelay     time.Duration
	WalletApps        []string
}

// ObserverOptions describes one screen showing an order.
type ObserverOptions struct {
	Device    Device
	Navigator Navigator
	OnPaid    func(orderID string)
}

// Observer is a registered screen. Close it when the screen goes away.
type Observer struct {
	ctrl    *Controller
	orderID string
	opts    ObserverOptions

	// guarded by ctrl.mu
	linked bool
	closed bool
}

// Controller owns the per-order payment state machine. At most one
// initiation request per order is in flight at any time, however many screens
// show the order.
type Controller struct {
	gateway  Gateway
	recorder AttemptRecorder
	bus      events.Publisher
	clock    clockwork.Clock
	cfg      ControllerConfig
	logger   zerolog.Logger

	mu       sync.Mutex
	registry *registry
}

// NewController creates a controller. A nil recorder or bus disables them.
func NewController(gateway Gateway, recorder AttemptRecorder, bus events.Publisher, clock clockwork.Clock, cfg ControllerConfig, logger zerolog.Logger) *Controller {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if bus == nil {
		bus = events.Discard
	}
	return &Controller{
		gateway:  gateway,
		recorder: recorder,
		bus:      bus,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With().Str("component", "payment-controller").Logger(),
		registry: newRegistry(),
	}
}

// effects are side effects collected under the lock and run after it.
type effects []func()

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

// View returns the current state of an order.
func (c *Controller) View(orderID string) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.registry.lookup(orderID)
	if !ok {
		return View{OrderID: orderID, Phase: PhaseIdle, Status: model.OrderStatusPending}
	}
	return e.view()
}

// Observe registers a screen for orderID. Mobile observers get the matching
// wallet link opened once an invoice is ready.
func (c *Controller) Observe(orderID string, opts ObserverOptions) *Observer {
	c.mu.Lock()
	e := c.registry.get(orderID, c.clock.Now())
	o := &Observer{ctrl: c, orderID: orderID, opts: opts}
	e.observed = true
	e.observers[o] = struct{}{}
	if e.phase == PhaseReady {
		c.scheduleDeepLinkLocked(e, o)
	}
	c.mu.Unlock()
	return o
}

// View returns the observed order's state.
func (o *Observer) View() View {
	return o.ctrl.View(o.orderID)
}

// Close unregisters the screen. The order's state is discarded once no
// screen remains and no request is in flight.
func (o *Observer) Close() {
	c := o.ctrl
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	e, ok := c.registry.lookup(o.orderID)
	if !ok {
		return
	}
	delete(e.observers, o)
	if e.orphaned() {
		c.registry.drop(e)
	}
}

// Initiate requests a payment invoice on explicit user action. It makes no
// call when the order is terminal, an invoice is already shown, or another
// request for the order is in flight.
func (c *Controller) Initiate(ctx context.Context, token, orderID string) (View, error) {
	c.mu.Lock()
	e := c.registry.get(orderID, c.clock.Now())

	if e.status().IsTerminal() {
		fx := c.enterTerminalLocked(e)
		v := e.view()
		c.mu.Unlock()
		fx.run()
		return v, model.ErrOrderTerminal
	}
	if e.inFlight || (e.phase == PhaseReady && e.invoice.HasQR()) {
		v := e.view()
		c.mu.Unlock()
		return v, nil
	}

	attempt := c.beginLocked(e, false)
	c.mu.Unlock()

	return c.execute(ctx, token, e, attempt)
}

// AutoInitiate applies the automatic initiation policy to a freshly loaded
// order and reports whether a request was made. An order that already carries
// an invoice id gets a single recovery request even after a failed attempt.
func (c *Controller) AutoInitiate(ctx context.Context, token string, order *model.Order) (View, bool, error) {
	c.mu.Lock()
	e := c.registry.get(order.ID, c.clock.Now())
	fx := c.observeOrderLocked(e, order)

	start, recovery := c.autoDecisionLocked(e)
	if !start {
		v := e.view()
		c.mu.Unlock()
		fx.run()
		return v, false, nil
	}

	if recovery {
		e.recovered = true
	}
	attempt := c.beginLocked(e, recovery)
	c.mu.Unlock()
	fx.run()

	v, err := c.execute(ctx, token, e, attempt)
	return v, true, err
}

func (c *Controller) autoDecisionLocked(e *entry) (start, recovery bool) {
	if e.status().IsTerminal() || e.inFlight || e.invoice.HasQR() {
		return false, false
	}
	if e.invoiceID != "" && !e.recovered {
		return true, true
	}
	if e.lastErr != nil {
		return false, false
	}
	return true, false
}

func (c *Controller) beginLocked(e *entry, recovery bool) *model.PaymentAttempt {
	now := c.clock.Now()

	if e.releaseTimer != nil {
		e.releaseTimer.Stop()
		e.releaseTimer = nil
	}
	e.inFlight = true
	e.attempts++
	e.lastErr = nil
	e.phase = PhaseInitiating
	e.touched = now

	return &model.PaymentAttempt{
		ID:        uuid.New(),
		OrderID:   e.orderID,
		Attempt:   e.attempts,
		Recovery:  recovery,
		Outcome:   model.AttemptOutcomePending,
		StartedAt: now,
	}
}

func (c *Controller) execute(ctx context.Context, token string, e *entry, attempt *model.PaymentAttempt) (View, error) {
	logger := c.logger.With().
		Str("order_id", e.orderID).
		Int("attempt", attempt.Attempt).
		Bool("recovery", attempt.Recovery).
		Logger()

	logger.Info().Msg("initiating payment")
	c.publishPhase(ctx, e.orderID, PhaseInitiating, "")
	c.record(ctx, "record attempt", func(ctx context.Context) error {
		return c.recorder.RecordAttempt(ctx, attempt)
	})

	invoice, err := c.gateway.InitiatePayment(ctx, token, e.orderID)
	if err == nil && !invoice.HasQR() {
		err = model.ErrNoQRCode
	}

	c.mu.Lock()
	fx := c.settleLocked(e, invoice, err, attempt)
	v := e.view()
	c.mu.Unlock()
	fx.run()

	c.record(ctx, "complete attempt", func(ctx context.Context) error {
		return c.recorder.CompleteAttempt(ctx, attempt)
	})

	switch attempt.Outcome {
	case model.AttemptOutcomeReady:
		logger.Info().Str("invoice_id", invoice.InvoiceID).Msg("payment invoice ready")
		return v, nil
	case model.AttemptOutcomeInProgress:
		logger.Info().Dur("backoff", c.cfg.InProgressBackoff).Msg("payment already in progress")
		return v, nil
	}

	if err == nil {
		return v, nil
	}
	logger.Warn().Err(err).Str("kind", string(apiclient.Classify(err))).Msg("payment initiation failed")
	return v, err
}

func (c *Controller) settleLocked(e *entry, invoice *model.PaymentInvoice, err error, attempt *model.PaymentAttempt) effects {
	now := c.clock.Now()
	attempt.SettledAt = &now
	e.touched = now

	var fx effects

	switch {
	case err == nil:
		attempt.Outcome = model.AttemptOutcomeReady
	case apiclient.Classify(err) == model.KindInProgress:
		attempt.Outcome = model.AttemptOutcomeInProgress
	default:
		attempt.Outcome = model.AttemptOutcomeFailed
		attempt.Error = apiclient.Message(err)
	}

	// The order settled while the request was out; its result is moot.
	if e.status().IsTerminal() {
		e.inFlight = false
		fx = append(fx, c.enterTerminalLocked(e)...)
		if e.orphaned() {
			c.registry.drop(e)
		}
		return fx
	}

	switch attempt.Outcome {
	case model.AttemptOutcomeReady:
		e.inFlight = false
		e.invoice = invoice
		if invoice.InvoiceID != "" {
			e.invoiceID = invoice.InvoiceID
		}
		e.phase = PhaseReady
		for o := range e.observers {
			c.scheduleDeepLinkLocked(e, o)
		}
		fx = append(fx, c.phaseEffect(e.orderID, PhaseReady, ""))

	case model.AttemptOutcomeInProgress:
		// Hold the in-flight slot until the backoff elapses so no one retries
		// against a gateway that is still processing.
		e.phase = PhaseAlreadyInProgress
		e.releaseTimer = c.clock.AfterFunc(c.cfg.InProgressBackoff, func() {
			c.release(e)
		})
		fx = append(fx, c.phaseEffect(e.orderID, PhaseAlreadyInProgress, ""))

	default:
		e.inFlight = false
		e.lastErr = err
		e.phase = PhaseError
		fx = append(fx, c.phaseEffect(e.orderID, PhaseError, attempt.Error))
	}

	if e.orphaned() {
		c.registry.drop(e)
	}
	return fx
}

func (c *Controller) release(e *entry) {
	c.mu.Lock()
	cur, ok := c.registry.lookup(e.orderID)
	if !ok || cur != e || e.phase != PhaseAlreadyInProgress {
		c.mu.Unlock()
		return
	}
	e.inFlight = false
	e.phase = PhaseIdle
	e.releaseTimer = nil
	if e.orphaned() {
		c.registry.drop(e)
	}
	c.mu.Unlock()

	c.publishPhase(context.Background(), e.orderID, PhaseIdle, "")
}

// ObserveOrder feeds a freshly fetched order into the state machine.
func (c *Controller) ObserveOrder(order *model.Order) View {
	c.mu.Lock()
	e := c.registry.get(order.ID, c.clock.Now())
	fx := c.observeOrderLocked(e, order)
	v := e.view()
	c.mu.Unlock()
	fx.run()
	return v
}

func (c *Controller) observeOrderLocked(e *entry, order *model.Order) effects {
	if order.Status != "" {
		e.orderStatus = order.Status
	}
	if order.InvoiceID != "" {
		e.invoiceID = order.InvoiceID
	}
	if e.status().IsTerminal() {
		return c.enterTerminalLocked(e)
	}
	return nil
}

// ObserveStatus feeds a polled payment status into the state machine.
func (c *Controller) ObserveStatus(orderID string, status model.PaymentStatus) View {
	c.mu.Lock()
	e := c.registry.get(orderID, c.clock.Now())
	if status.PaymentStatus != "" {
		e.paymentStatus = status.PaymentStatus
	}
	var fx effects
	if e.status().IsTerminal() {
		fx = c.enterTerminalLocked(e)
	}
	v := e.view()
	c.mu.Unlock()
	fx.run()
	return v
}

// Cancel asks the API to cancel the order's payment. Local state changes only
// after the API acknowledges.
func (c *Controller) Cancel(ctx context.Context, token, orderID string) (View, error) {
	c.mu.Lock()
	e := c.registry.get(orderID, c.clock.Now())
	switch e.status() {
	case model.OrderStatusCancelled:
		v := e.view()
		c.mu.Unlock()
		return v, nil
	case model.OrderStatusPaid:
		v := e.view()
		c.mu.Unlock()
		return v, model.ErrOrderTerminal
	}
	c.mu.Unlock()

	logger := c.logger.With().Str("order_id", orderID).Logger()

	if err := c.gateway.CancelPayment(ctx, token, orderID); err != nil {
		logger.Warn().Err(err).Msg("payment cancellation failed")
		return c.View(orderID), err
	}

	c.mu.Lock()
	e = c.registry.get(orderID, c.clock.Now())
	e.cancelled = true
	fx := c.enterTerminalLocked(e)
	v := e.view()
	c.mu.Unlock()
	fx.run()

	logger.Info().Msg("payment cancelled")
	return v, nil
}

// enterTerminalLocked moves e to the terminal phase, discarding any invoice
// and pending timers, and schedules the paid callback once.
func (c *Controller) enterTerminalLocked(e *entry) effects {
	var fx effects
	status := e.status()

	if e.phase != PhaseTerminal {
		e.phase = PhaseTerminal
		e.invoice = nil
		e.lastErr = nil
		if e.releaseTimer != nil {
			e.releaseTimer.Stop()
			e.releaseTimer = nil
			e.inFlight = false
		}
		e.stopLinkTimers()

		orderID := e.orderID
		fx = append(fx, c.phaseEffect(orderID, PhaseTerminal, ""), func() {
			c.record(context.Background(), "record terminal", func(ctx context.Context) error {
				return c.recorder.RecordTerminal(ctx, orderID, status)
			})
		})
		c.logger.Info().Str("order_id", orderID).Str("status", string(status)).Msg("payment reached terminal status")
	}

	if status == model.OrderStatusPaid && !e.paidScheduled {
		e.paidScheduled = true
		e.paidTimer = c.clock.AfterFunc(c.cfg.PaidRedirectDelay, func() {
			c.firePaid(e)
		})
	}
	return fx
}

func (c *Controller) firePaid(e *entry) {
	c.mu.Lock()
	var callbacks []func(string)
	for o := range e.observers {
		if o.opts.OnPaid != nil {
			callbacks = append(callbacks, o.opts.OnPaid)
		}
	}
	e.paidTimer = nil
	c.mu.Unlock()

	c.bus.Publish(context.Background(), events.PaymentPaid{OrderID: e.orderID, RedirectPath: model.OrderPath(e.orderID)})
	for _, cb := range callbacks {
		cb(e.orderID)
	}
}

func (c *Controller) scheduleDeepLinkLocked(e *entry, o *Observer) {
	if o.linked || o.closed || !o.opts.Device.Mobile || o.opts.Navigator == nil || e.invoice == nil {
		return
	}
	link, ok := SelectWalletLink(e.invoice.URLs, c.cfg.WalletApps)
	if !ok {
		return
	}
	o.linked = true

	orderID := e.orderID
	t := c.clock.AfterFunc(c.cfg.DeepLinkDelay, func() {
		c.mu.Lock()
		open := !o.closed && e.phase == PhaseReady
		c.mu.Unlock()
		if !open {
			return
		}
		o.opts.Navigator.Open(orderID, link)
		c.bus.Publish(context.Background(), events.DeepLinkOpened{OrderID: orderID, Name: link.Name, Link: link.Link})
	})
	e.linkTimers = append(e.linkTimers, t)
}

// AutoOpenLink returns the wallet link a device should open for v, if any.
func (c *Controller) AutoOpenLink(v View, d Device) (model.DeepLink, bool) {
	if !d.Mobile || v.Phase != PhaseReady || v.Invoice == nil {
		return model.DeepLink{}, false
	}
	return SelectWalletLink(v.Invoice.URLs, c.cfg.WalletApps)
}

// DeepLinkDelay is how long a mobile screen waits before opening a wallet.
func (c *Controller) DeepLinkDelay() time.Duration {
	return c.cfg.DeepLinkDelay
}

// PaidRedirect returns the page a screen showing v moves to once the order
// is paid, and how long the success state stays up first.
func (c *Controller) PaidRedirect(v View) (string, time.Duration, bool) {
	if v.Status != model.OrderStatusPaid {
		return "", 0, false
	}
	return model.OrderPath(v.OrderID), c.cfg.PaidRedirectDelay, true
}

// Known reports whether the controller holds any state for orderID, including
// the remembered status of a swept settled order.
func (c *Controller) Known(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.known(orderID)
}

// Sweep drops unobserved, idle entries untouched for longer than maxIdle and
// returns how many were dropped. Settled entries leave their final status
// behind for settledRetention.
func (c *Controller) Sweep(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var dropped int
	for _, e := range c.registry.entries {
		if len(e.observers) > 0 || e.inFlight || now.Sub(e.touched) < maxIdle {
			continue
		}
		c.registry.drop(e)
		dropped++
	}
	forgotten := c.registry.forgetSettled(now.Add(-settledRetention))
	if dropped > 0 || forgotten > 0 {
		c.logger.Debug().
			Int("dropped", dropped).
			Int("forgotten", forgotten).
			Int("remaining", c.registry.size()).
			Msg("swept payment registry")
	}
	return dropped
}

func (c *Controller) phaseEffect(orderID string, phase Phase, msg string) func() {
	return func() {
		c.publishPhase(context.Background(), orderID, phase, msg)
	}
}

func (c *Controller) publishPhase(ctx context.Context, orderID string, phase Phase, msg string) {
	c.bus.Publish(ctx, events.PaymentPhaseChanged{OrderID: orderID, Phase: string(phase), Error: msg})
}

func (c *Controller) record(ctx context.Context, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.logger.Warn().Err(err).Str("op", what).Msg("failed to record payment attempt")
	}
}
