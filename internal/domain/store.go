package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists ledger snapshots. A snapshot replaces the previous one
// wholesale; there is no per-mutation log.
type LedgerStore interface {
	SaveLedger(ctx context.Context, records []LedgerRecord) error
	LoadLedger(ctx context.Context) ([]LedgerRecord, error)
}

// TransferStore persists executed plans. Implementations keep at most
// MaxTransferHistory records, dropping the oldest first. ListTransfers
// returns newest first.
type TransferStore interface {
	AppendTransfer(ctx context.Context, rec TransferRecord) error
	ListTransfers(ctx context.Context, opts ListOpts) ([]TransferRecord, error)
}

// StateStore is the full persistence surface used by the engine.
type StateStore interface {
	LedgerStore
	TransferStore
}

// MaxTransferHistory caps the transfer history.
const MaxTransferHistory = 1000

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
