package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// ReportSource returns recent cycle reports, oldest first. engine.Engine
// satisfies it.
type ReportSource interface {
	Reports() []domain.CycleReport
}

// ReportHandler serves cycle reports.
type ReportHandler struct {
	source ReportSource
	logger *slog.Logger
}

// NewReportHandler creates a ReportHandler over source.
func NewReportHandler(source ReportSource, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{source: source, logger: logger}
}

// ListReports returns reports newest first, filtered by ?state= and paged by
// limit/offset.
// GET /api/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since/until: "+err.Error())
		return
	}
	state := domain.CycleState(r.URL.Query().Get("state"))

	reports := slices.Clone(h.source.Reports())
	slices.Reverse(reports)
	filtered := reports[:0]
	for _, rep := range reports {
		if state != "" && rep.State != state {
			continue
		}
		if opts.Since != nil && rep.StartedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && rep.StartedAt.After(*opts.Until) {
			continue
		}
		filtered = append(filtered, rep)
	}
	page := window(filtered, opts)
	writeJSON(w, http.StatusOK, map[string]any{"reports": page, "count": len(page), "total": len(filtered)})
}

// LatestReport returns the most recent report, or 404 before the first
// cycle.
// GET /api/reports/latest
func (h *ReportHandler) LatestReport(w http.ResponseWriter, r *http.Request) {
	reports := h.source.Reports()
	if len(reports) == 0 {
		writeError(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	writeJSON(w, http.StatusOK, reports[len(reports)-1])
}
