package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// TransferHandler serves the executed transfer history.
type TransferHandler struct {
	store  domain.TransferStore
	logger *slog.Logger
}

// NewTransferHandler creates a TransferHandler backed by store.
func NewTransferHandler(store domain.TransferStore, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{store: store, logger: logger}
}

// ListTransfers returns executed plans newest first.
// GET /api/transfers
func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since/until: "+err.Error())
		return
	}
	recs, err := h.store.ListTransfers(r.Context(), opts)
	if err != nil {
		h.logger.Error("handler: list transfers failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	if recs == nil {
		recs = []domain.TransferRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": recs, "count": len(recs)})
}
