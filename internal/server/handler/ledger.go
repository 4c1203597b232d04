package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// LedgerReader returns the current ledger records.
type LedgerReader interface {
	LoadLedger(ctx context.Context) ([]domain.LedgerRecord, error)
}

// LedgerEntry is a ledger record with its average entry price.
type LedgerEntry struct {
	domain.LedgerRecord
	AvgEntryPrice float64 `json:"avg_entry_price"`
}

// LedgerHandler serves the cost-basis ledger.
type LedgerHandler struct {
	source LedgerReader
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler reading from source.
func NewLedgerHandler(source LedgerReader, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{source: source, logger: logger}
}

// ListLedger returns every entry, optionally filtered by ?venue=.
// GET /api/ledger
func (h *LedgerHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	records, err := h.source.LoadLedger(r.Context())
	if err != nil {
		h.logger.Error("handler: load ledger failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}

	venue := r.URL.Query().Get("venue")
	out := make([]LedgerEntry, 0, len(records))
	for _, rec := range records {
		if venue != "" && rec.Venue != venue {
			continue
		}
		e := LedgerEntry{LedgerRecord: rec}
		if rec.Quantity > 0 {
			e.AvgEntryPrice = rec.CostBasis / rec.Quantity
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}
