package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// attemptRepository implements AttemptRepository using PostgreSQL.
type attemptRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewAttemptRepository creates a new PostgreSQL-backed attempt ledger.
func NewAttemptRepository(pool *pgxpool.Pool, logger zerolog.Logger) AttemptRepository {
	return &attemptRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "payment_attempt").Logger(),
	}
}

// RecordAttempt inserts an attempt when its request is sent.
func (r *attemptRepository) RecordAttempt(ctx context.Context, a *model.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (id, order_id, attempt, recovery, outcome, error, started_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`

	_, err := r.pool.Exec(ctx, query, a.ID, a.OrderID, a.Attempt, a.Recovery, a.Outcome, a.Error, a.StartedAt, a.SettledAt)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", a.OrderID).
			Int("attempt", a.Attempt).
			Msg("failed to record payment attempt")
		return fmt.Errorf("failed to record payment attempt: %w", err)
	}

	r.logger.Debug().
		Str("order_id", a.OrderID).
		Str("attempt_id", a.ID.String()).
		Msg("payment attempt recorded")

	return nil
}

// CompleteAttempt stores the outcome of a settled attempt.
func (r *attemptRepository) CompleteAttempt(ctx context.Context, a *model.PaymentAttempt) error {
	query := `
		UPDATE payment_attempts
		SET outcome = $2, error = NULLIF($3, ''), settled_at = $4
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, a.ID, a.Outcome, a.Error, a.SettledAt)
	if err != nil {
		r.logger.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to complete payment attempt")
		return fmt.Errorf("failed to complete payment attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment attempt %s not found", a.ID)
	}

	return nil
}

// RecordTerminal stores the terminal status an order reached.
func (r *attemptRepository) RecordTerminal(ctx context.Context, orderID string, status model.OrderStatus) error {
	query := `
		INSERT INTO payment_terminals (order_id, status, recorded_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status, recorded_at = EXCLUDED.recorded_at
		WHERE payment_terminals.status <> $3
	`

	_, err := r.pool.Exec(ctx, query, orderID, string(status), string(model.OrderStatusPaid))
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to record terminal status")
		return fmt.Errorf("failed to record terminal status: %w", err)
	}

	r.logger.Debug().
		Str("order_id", orderID).
		Str("status", string(status)).
		Msg("terminal status recorded")

	return nil
}

// ListByOrder returns an order's attempts, oldest first.
func (r *attemptRepository) ListByOrder(ctx context.Context, orderID string) ([]model.PaymentAttempt, error) {
	query := `
		SELECT id, order_id, attempt, recovery, outcome, COALESCE(error, '') AS error, started_at, settled_at
		FROM payment_attempts
		WHERE order_id = $1
		ORDER BY started_at, attempt
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to query payment attempts")
		return nil, fmt.Errorf("failed to query payment attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.PaymentAttempt])
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan payment attempt rows")
		return nil, fmt.Errorf("failed to scan payment attempts: %w", err)
	}

	return attempts, nil
}

// TerminalStatus returns the recorded terminal status of an order.
func (r *attemptRepository) TerminalStatus(ctx context.Context, orderID string) (model.OrderStatus, bool, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM payment_terminals WHERE order_id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		r.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to query terminal status")
		return "", false, fmt.Errorf("failed to query terminal status: %w", err)
	}
	return model.OrderStatus(status), true, nil
}
