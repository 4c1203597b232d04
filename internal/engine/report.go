package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

const persistTimeout = 15 * time.Second

// persist appends the executed plan to the transfer history and snapshots
// the ledger. Failures are logged; the next cycle snapshots again.
func (e *Engine) persist(ctx context.Context, report domain.CycleReport) {
	if e.store == nil || report.Plan == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	rec := domain.TransferRecord{
		CycleID:    report.CycleID,
		Plan:       *report.Plan,
		Executed:   report.Executed,
		Moved:      report.Moved,
		FeesPaid:   report.FeesPaid,
		ExecutedAt: e.now(),
	}
	if err := e.store.AppendTransfer(pctx, rec); err != nil {
		e.logger.Error("engine: append transfer failed", slog.String("cycle_id", report.CycleID), slog.String("error", err.Error()))
	}
	if err := e.store.SaveLedger(pctx, e.ledger.Records()); err != nil {
		e.logger.Error("engine: save ledger failed", slog.String("cycle_id", report.CycleID), slog.String("error", err.Error()))
	}
}

// finish stamps the terminal state and fans the report out to the report
// history, bus, audit log, notifier and metrics.
func (e *Engine) finish(ctx context.Context, report domain.CycleReport, state domain.CycleState) domain.CycleReport {
	report.State = state
	report.FinishedAt = e.now()

	e.reportsMu.Lock()
	e.reports = append(e.reports, report)
	if over := len(e.reports) - e.cfg.KeepReports; over > 0 {
		e.reports = append([]domain.CycleReport(nil), e.reports[over:]...)
	}
	e.reportsMu.Unlock()

	e.logger.Info("engine: cycle finished",
		slog.String("cycle_id", report.CycleID),
		slog.String("state", string(state)),
		slog.Int("snapshots", report.SnapshotsScanned),
		slog.Int("opportunities", report.Opportunities),
		slog.Float64("moved", report.Moved),
		slog.Float64("fees_paid", report.FeesPaid),
		slog.Int("unavailable_venues", len(report.UnavailableVenues)),
	)

	if e.metrics != nil {
		e.metrics.CycleFinished(state, report.FinishedAt.Sub(report.StartedAt))
	}

	// Fan-out runs even for aborted cycles, so it must not depend on ctx.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if e.bus != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := e.bus.Publish(fctx, e.cfg.ReportChannel, payload); err != nil {
				e.logger.Warn("engine: publish report failed", slog.String("error", err.Error()))
			}
			if err := e.bus.StreamAppend(fctx, e.cfg.ReportStream, payload); err != nil {
				e.logger.Warn("engine: stream report failed", slog.String("error", err.Error()))
			}
		}
	}

	if e.audit != nil {
		detail := map[string]any{
			"cycle_id":      report.CycleID,
			"state":         string(state),
			"opportunities": report.Opportunities,
			"moved":         report.Moved,
			"fees_paid":     report.FeesPaid,
			"dry_run":       report.DryRun,
		}
		if report.Plan != nil {
			detail["plan_id"] = report.Plan.ID
			detail["need"] = report.Plan.Need
			detail["delivered"] = report.Plan.Delivered
			detail["feasible"] = report.Plan.Feasible
		}
		if err := e.audit.Log(fctx, "cycle_report", detail); err != nil {
			e.logger.Warn("engine: audit log failed", slog.String("error", err.Error()))
		}
	}

	if e.notifier != nil && !report.DryRun {
		switch state {
		case domain.CycleSettled:
			if report.Moved > 0 {
				msg := fmt.Sprintf("moved %.2f to %s:%s, fees %.2f, %d orders",
					report.Moved, report.Plan.Destination.Venue, report.Plan.Destination.Asset, report.FeesPaid, len(report.Executed))
				_ = e.notifier.Notify(fctx, EventCycleSettled, "Reallocation settled", msg)
			}
		case domain.CycleInfeasible:
			msg := fmt.Sprintf("need %.2f, surplus insufficient across %d snapshots", report.Plan.Need, report.SnapshotsScanned)
			_ = e.notifier.Notify(fctx, EventCycleInfeasible, "Reallocation infeasible", msg)
		}
	}
	return report
}
