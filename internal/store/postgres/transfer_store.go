package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// TransferStore keeps executed plans in transfer_history. The full record is
// stored as JSONB; the summary columns exist for ad-hoc queries.
type TransferStore struct {
	pool *pgxpool.Pool
}

// NewTransferStore creates a TransferStore over pool.
func NewTransferStore(pool *pgxpool.Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// AppendTransfer inserts rec and trims the table to
// domain.MaxTransferHistory rows, oldest first.
func (s *TransferStore) AppendTransfer(ctx context.Context, rec domain.TransferRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal transfer %s: %w", rec.CycleID, err)
	}
	dst := rec.Plan.Destination.Venue + ":" + rec.Plan.Destination.Asset

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: append transfer: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `INSERT INTO transfer_history (cycle_id, destination, moved, fees_paid, record, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insert, rec.CycleID, dst, rec.Moved, rec.FeesPaid, data, rec.ExecutedAt); err != nil {
		return fmt.Errorf("postgres: append transfer %s: %w", rec.CycleID, err)
	}

	const trim = `DELETE FROM transfer_history WHERE id NOT IN (
		SELECT id FROM transfer_history ORDER BY executed_at DESC, id DESC LIMIT $1)`
	if _, err := tx.Exec(ctx, trim, domain.MaxTransferHistory); err != nil {
		return fmt.Errorf("postgres: trim transfer history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: append transfer: commit: %w", err)
	}
	return nil
}

// ListTransfers returns records newest first.
func (s *TransferStore) ListTransfers(ctx context.Context, opts domain.ListOpts) ([]domain.TransferRecord, error) {
	query, args := listQuery(`SELECT record FROM transfer_history`, "executed_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transfers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransferRecord, error) {
		var data []byte
		var rec domain.TransferRecord
		if err := row.Scan(&data); err != nil {
			return rec, err
		}
		return rec, json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list transfers: scan: %w", err)
	}
	return out, nil
}

var _ domain.TransferStore = (*TransferStore)(nil)
