package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS payment_attempts (
		id UUID PRIMARY KEY,
		order_id TEXT NOT NULL,
		attempt INTEGER NOT NULL CHECK (attempt > 0),
		recovery BOOLEAN NOT NULL DEFAULT FALSE,
		outcome TEXT NOT NULL,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		settled_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_payment_attempts_order_id ON payment_attempts(order_id, started_at);

	CREATE TABLE IF NOT EXISTS payment_terminals (
		order_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// EnsureSchema creates the ledger tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}
