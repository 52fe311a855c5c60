// Command ledger prints the payment attempt history of an order.
//
//	ledger -order ord-123
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	orderID := flag.String("order", "", "order id to inspect")
	flag.Parse()
	if *orderID == "" {
		return fmt.Errorf("-order is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("the payment ledger is disabled (set DB_ENABLED=true)")
	}

	logger := config.NewLogger(cfg.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewAttemptRepository(pool, logger)

	attempts, err := repo.ListByOrder(ctx, *orderID)
	if err != nil {
		return err
	}
	terminal, settled, err := repo.TerminalStatus(ctx, *orderID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tRECOVERY\tOUTCOME\tSTARTED\tSETTLED\tERROR")
	for _, a := range attempts {
		settledAt := "-"
		if a.SettledAt != nil {
			settledAt = a.SettledAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%t\t%s\t%s\t%s\t%s\n",
			a.Attempt, a.Recovery, a.Outcome, a.StartedAt.Format(time.RFC3339), settledAt, a.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if settled {
		fmt.Printf("\norder %s settled as %s\n", *orderID, terminal)
	} else {
		fmt.Printf("\norder %s not settled\n", *orderID)
	}
	return nil
}
