// Package scheduler runs periodic housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	s       gocron.Scheduler
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a scheduler. A nil clock uses the real clock. Each run gets a
// context bounded by timeout.
func New(clock clockwork.Clock, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()

	opts := []gocron.SchedulerOption{
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithError(func(_ uuid.UUID, name string, err error) {
					logger.Warn().Err(err).Str("job", name).Msg("scheduled job failed")
				}),
			),
		),
	}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}

	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{s: s, timeout: timeout, logger: logger}, nil
}

// Every registers task to run each interval, starting one interval after
// Start. A run still going when the next is due is skipped.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			return task(ctx)
		}),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.logger.Info().Str("job", name).Dur("interval", interval).Msg("job scheduled")
	return nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.s.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.s.Shutdown()
}
