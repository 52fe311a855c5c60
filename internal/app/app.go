// Package app assembles the checkout BFF from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/apiclient"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/scheduler"
	"storefront/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const jobTimeout = 30 * time.Second

// Options overrides collaborators, mostly for tests.
type Options struct {
	Clock      clockwork.Clock
	HTTPClient *http.Client
	Pool       *pgxpool.Pool
}

// App is a wired BFF.
type App struct {
	Handler  http.Handler
	Bus      *events.Bus
	Engine   *payment.Engine
	Sessions *session.Store
	Ledger   repository.AttemptRepository

	scheduler *scheduler.Scheduler
	redis     *redis.Client
	pool      *pgxpool.Pool
	ownsPool  bool
	logger    zerolog.Logger
}

// New wires every component. Database and redis are optional and only
// connected when enabled.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &App{logger: logger}

	// Event bus, mirrored to redis when enabled
	a.Bus = events.NewBus(logger)
	var bus events.Publisher = a.Bus
	if cfg.Redis.Enabled {
		client, err := events.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.redis = client
		bus = events.NewRedisFanout(a.Bus, client, cfg.Redis.ChannelPrefix, logger)
	}

	// Payment attempt ledger
	var recorder payment.AttemptRecorder
	switch {
	case opts.Pool != nil:
		a.pool = opts.Pool
	case cfg.Database.Enabled:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.pool = pool
		a.ownsPool = true
	}
	if a.pool != nil {
		if err := repository.EnsureSchema(ctx, a.pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare ledger schema: %w", err)
		}
		a.Ledger = repository.NewAttemptRepository(a.pool, logger)
		recorder = a.Ledger
	} else {
		logger.Info().Msg("payment attempt ledger disabled")
	}

	api := apiclient.New(cfg.API, opts.HTTPClient, bus, logger)

	// Payment lifecycle
	ctrl := payment.NewController(api, recorder, bus, clock, payment.ControllerConfig{
		InProgressBackoff: cfg.Payment.InProgressBackoff,
		PaidRedirectDelay: cfg.Payment.PaidRedirectDelay,
		DeepLinkDelay:     cfg.Payment.DeepLinkDelay,
		WalletApps:        cfg.Payment.WalletApps,
	}, logger)
	poller := payment.NewPoller(api, bus, clock, payment.PollerConfig{
		Interval: cfg.Payment.PollInterval,
		Horizon:  cfg.Payment.PollHorizon,
	}, logger)
	a.Engine = payment.NewEngine(api, ctrl, poller, logger)

	// Checkout
	a.Sessions = session.NewStore(clock)
	validator := checkout.NewValidator()
	addresses := checkout.NewAddressService(api, validator, logger)
	orchestrator := checkout.NewOrchestrator(api, addresses, validator, a.Sessions, bus, clock, cfg.Server.Location(), logger)

	a.Handler = router.New(router.Handlers{
		Checkout: handler.NewCheckoutHandler(orchestrator, addresses, logger),
		Delivery: handler.NewDeliveryHandler(clock, cfg.Server.Location(), logger),
		Payment:  handler.NewPaymentHandler(a.Engine, cfg.Payment.QRSize, logger),
		Session:  handler.NewSessionHandler(api, a.Sessions, logger),
	}, bus, clock, logger)

	// Housekeeping
	sched, err := scheduler.New(clock, jobTimeout, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scheduler = sched

	if err := sched.Every("payment-registry-sweep", cfg.Scheduler.SweepInterval, func(ctx context.Context) error {
		if n := a.Engine.Sweep(cfg.Scheduler.EntryIdleTTL); n > 0 {
			logger.Debug().Int("dropped", n).Msg("idle payment entries swept")
		}
		return nil
	}); err != nil {
		a.Close()
		return nil, err
	}
	if err := sched.Every("session-flag-sweep", cfg.Scheduler.SweepInterval, func(ctx context.Context) error {
		if n := a.Sessions.Sweep(); n > 0 {
			logger.Debug().Int("removed", n).Msg("expired session flags swept")
		}
		return nil
	}); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Start begins background jobs.
func (a *App) Start() {
	a.scheduler.Start()
}

// Close stops background work and releases connections.
func (a *App) Close() error {
	var errs []error

	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.pool != nil && a.ownsPool {
		a.pool.Close()
	}

	return errors.Join(errs...)
}
