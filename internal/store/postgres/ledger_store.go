package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// LedgerStore keeps the latest ledger snapshot in ledger_entries.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore over pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// SaveLedger replaces the stored snapshot in one transaction.
func (s *LedgerStore) SaveLedger(ctx context.Context, records []domain.LedgerRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries`); err != nil {
		return fmt.Errorf("postgres: save ledger: clear: %w", err)
	}
	if len(records) > 0 {
		rows := make([][]any, 0, len(records))
		for _, r := range records {
			rows = append(rows, []any{r.Venue, r.Instrument, r.Quantity, r.CostBasis, r.TotalFees, r.LastUpdated})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"ledger_entries"},
			[]string{"venue", "instrument", "quantity", "cost_basis", "total_fees", "last_updated"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("postgres: save ledger: copy %d rows: %w", len(records), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save ledger: commit: %w", err)
	}
	return nil
}

// LoadLedger returns the stored snapshot ordered by venue and instrument.
func (s *LedgerStore) LoadLedger(ctx context.Context) ([]domain.LedgerRecord, error) {
	const query = `SELECT venue, instrument, quantity, cost_basis, total_fees, last_updated
		FROM ledger_entries ORDER BY venue, instrument`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load ledger: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LedgerRecord, error) {
		var r domain.LedgerRecord
		err := row.Scan(&r.Venue, &r.Instrument, &r.Quantity, &r.CostBasis, &r.TotalFees, &r.LastUpdated)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: load ledger: scan: %w", err)
	}
	return recs, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
