package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// StateStore combines the ledger and transfer stores into a
// domain.StateStore.
type StateStore struct {
	*LedgerStore
	*TransferStore
}

// NewStateStore creates a StateStore over pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{LedgerStore: NewLedgerStore(pool), TransferStore: NewTransferStore(pool)}
}

var _ domain.StateStore = (*StateStore)(nil)
