package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore over the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution record and its legs in one transaction. The
// rescue order, when present, is stored as an extra leg flagged is_rescue.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, command_id, route, intermediate, status, final_currency, final_amount, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.CommandID, strings.Join(rec.Route.Symbols[:], ">"),
		rec.Route.Intermediate, string(rec.Status),
		rec.FinalCurrency, rec.FinalAmount, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	legIdx := 0
	insertLeg := func(leg domain.LegFill, rescue bool) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, leg_index, symbol, side, requested_qty, filled_qty, avg_price, outcome, is_rescue)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ID, legIdx, leg.Symbol, string(leg.Side),
			leg.RequestedQty, leg.FilledQty, leg.AvgPrice, string(leg.Outcome), rescue,
		)
		legIdx++
		return err
	}

	for _, leg := range rec.Legs {
		if err := insertLeg(leg, false); err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}
	if rec.Rescue != nil {
		if err := insertLeg(*rec.Rescue, true); err != nil {
			return fmt.Errorf("postgres: insert rescue leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
