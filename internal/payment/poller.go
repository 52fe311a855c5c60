package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/events"
	"storefront/internal/model"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Reasons a subscription stopped polling automatically.
const (
	StopReasonServer   = "server"
	StopReasonTerminal = "terminal"
	StopReasonHorizon  = "horizon"
	StopReasonStopped  = "stopped"
)

var errEmptyStatus = errors.New("payment status response was empty")

// PollerConfig holds the polling cadence and its hard horizon.
type PollerConfig struct {
	Interval time.Duration
	Horizon  time.Duration
}

// Poller starts status subscriptions.
type Poller struct {
	fetcher StatusFetcher
	bus     events.Publisher
	clock   clockwork.Clock
	cfg     PollerConfig
	logger  zerolog.Logger
}

// NewPoller creates a poller.
func NewPoller(fetcher StatusFetcher, bus events.Publisher, clock clockwork.Clock, cfg PollerConfig, logger zerolog.Logger) *Poller {
	if bus == nil {
		bus = events.Discard
	}
	return &Poller{
		fetcher: fetcher,
		bus:     bus,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With().Str("component", "payment-poller").Logger(),
	}
}

// Subscription is one running status poll for an order. Automatic requests
// stop on a terminal status, on the server's shouldStopPolling flag, at the
// horizon, or on Stop; Refresh keeps working afterwards.
type Subscription struct {
	orderID string
	token   string
	poller  *Poller
	logger  zerolog.Logger

	flight   singleflight.Group
	fetching atomic.Bool

	mu     sync.Mutex
	latest *model.PaymentStatus
	reason string

	updates chan model.PaymentStatus
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start fetches the status immediately and then every interval.
func (p *Poller) Start(ctx context.Context, token, orderID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)

	s := &Subscription{
		orderID: orderID,
		token:   token,
		poller:  p,
		logger:  p.logger.With().Str("order_id", orderID).Logger(),
		updates: make(chan model.PaymentStatus, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	ticker := p.clock.NewTicker(p.cfg.Interval)
	horizon := p.clock.NewTimer(p.cfg.Horizon)

	s.logger.Debug().
		Dur("interval", p.cfg.Interval).
		Dur("horizon", p.cfg.Horizon).
		Msg("payment status polling started")

	go s.run(ctx, ticker, horizon)

	return s
}

func (s *Subscription) run(ctx context.Context, ticker clockwork.Ticker, horizon clockwork.Timer) {
	defer close(s.done)
	defer ticker.Stop()
	defer horizon.Stop()

	if s.tick(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.stopWith(StopReasonStopped)
			return
		case <-horizon.Chan():
			s.stopWith(StopReasonHorizon)
			return
		case <-ticker.Chan():
			if s.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one scheduled fetch and reports whether polling should end.
func (s *Subscription) tick(ctx context.Context) bool {
	if s.fetching.Load() {
		s.logger.Debug().Msg("status fetch in flight, skipping scheduled tick")
		return false
	}

	status, err := s.fetch(ctx, "poller")
	if err != nil {
		if ctx.Err() != nil {
			s.stopWith(StopReasonStopped)
			return true
		}
		s.logger.Warn().Err(err).Msg("payment status poll failed")
		return false
	}

	switch {
	case status.PaymentStatus.IsTerminal():
		s.stopWith(StopReasonTerminal)
		return true
	case status.ShouldStopPolling:
		s.stopWith(StopReasonServer)
		return true
	}
	return false
}

// fetch issues at most one status request at a time; concurrent callers share
// the in-flight result.
func (s *Subscription) fetch(ctx context.Context, source string) (*model.PaymentStatus, error) {
	v, err, _ := s.flight.Do("status", func() (interface{}, error) {
		s.fetching.Store(true)
		defer s.fetching.Store(false)

		status, err := s.poller.fetcher.GetPaymentStatus(ctx, s.token, s.orderID)
		if err != nil {
			return nil, err
		}
		if status == nil {
			return nil, errEmptyStatus
		}
		s.record(ctx, *status, source)
		return status, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.PaymentStatus), nil
}

func (s *Subscription) record(ctx context.Context, status model.PaymentStatus, source string) {
	s.mu.Lock()
	s.latest = &status
	select {
	case <-s.updates:
	default:
	}
	s.updates <- status
	s.mu.Unlock()

	s.poller.bus.Publish(ctx, events.PaymentStatusChanged{
		OrderID:           s.orderID,
		Status:            status.PaymentStatus,
		ShouldStopPolling: status.ShouldStopPolling,
		Source:            source,
	})
}

func (s *Subscription) stopWith(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()

	s.logger.Debug().Str("reason", reason).Msg("payment status polling stopped")
}

// Refresh fetches the status on demand. It joins a fetch already in flight.
func (s *Subscription) Refresh(ctx context.Context) (*model.PaymentStatus, error) {
	return s.fetch(ctx, "refresh")
}

// Updates delivers the most recent status; older unread values are replaced.
func (s *Subscription) Updates() <-chan model.PaymentStatus {
	return s.updates
}

// Latest returns the last observed status.
func (s *Subscription) Latest() (model.PaymentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return model.PaymentStatus{}, false
	}
	return *s.latest, true
}

// StopReason tells why automatic polling ended, or "" while it runs.
func (s *Subscription) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done is closed once automatic polling has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Stop ends automatic polling.
func (s *Subscription) Stop() {
	s.cancel()
}

// OrderID returns the polled order.
func (s *Subscription) OrderID() string {
	return s.orderID
}
