// Package engine runs reallocation cycles: scan venues for prices, plan an
// extraction toward a destination, execute it and reconcile the ledger.
//
// A cycle moves through SCANNING, PLANNING and EXECUTING and ends SETTLED,
// INFEASIBLE or ABORTED. Only one cycle runs at a time. Cancellation is
// honoured between phases; once EXECUTING starts, submitted orders run to
// completion on a detached context so every fill reaches the ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/ledger"
	"github.com/alanyoungcy/reallocbot/internal/planner"
)

// Resolver maps canonical instruments to venue-native symbols and rules.
// symbol.Registry satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, canonical, venue string) (string, domain.VenueInstrumentRule, error)
	// Refresh refetches a venue's catalog after its rules proved stale.
	Refresh(ctx context.Context, venue string) error
}

// FeeModel is the part of fees.Model the engine needs at execution time.
type FeeModel interface {
	SingleTradeCost(venue string, isTaker bool) float64
	WithdrawalFee(venue, asset string) (float64, bool)
}

// Notifier forwards operator alerts. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives cycle metrics. metrics.Collector satisfies it.
type Recorder interface {
	CycleFinished(state domain.CycleState, took time.Duration)
	VenueUnavailable(venue string)
	TransferExecuted(venue string, status domain.ExecStatus, proceeds, fee float64)
	SurplusObserved(extractable float64, snapshots int)
}

// Notification event types.
const (
	EventCycleSettled    = "cycle_settled"
	EventCycleInfeasible = "cycle_infeasible"
	EventOrderRejected   = "order_rejected"
	EventVenueDown       = "venue_unavailable"
)

// Config holds engine behaviour.
type Config struct {
	Destination  domain.Destination
	Need         float64
	VenueTimeout time.Duration
	OrderTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
	PairCooldown time.Duration
	DryRun       bool
	// ReportChannel and ReportStream name the bus targets for reports.
	ReportChannel string
	ReportStream  string
	// KeepReports bounds the in-memory report history.
	KeepReports int
}

// DefaultConfig returns the stock engine timings.
func DefaultConfig() Config {
	return Config{
		VenueTimeout:  10 * time.Second,
		OrderTimeout:  30 * time.Second,
		LockTTL:       2 * time.Minute,
		LockWait:      30 * time.Second,
		ReportChannel: "realloc:reports",
		ReportStream:  "realloc:reports:stream",
		KeepReports:   100,
	}
}

// Deps are the engine's collaborators. Venues, Registry, Ledger, Planner and
// Fees are required; the rest may be nil.
type Deps struct {
	Venues   []domain.VenueAdapter
	Registry Resolver
	Ledger   *ledger.Ledger
	Planner  *planner.Planner
	Fees     FeeModel
	Locks    domain.LockManager
	Store    domain.StateStore
	Audit    domain.AuditStore
	Bus      domain.ReportBus
	Prices   domain.PriceCache
	Notifier Notifier
	Metrics  Recorder
}

// Engine runs reallocation cycles.
type Engine struct {
	cfg      Config
	venues   map[string]domain.VenueAdapter
	registry Resolver
	ledger   *ledger.Ledger
	planner  *planner.Planner
	fees     FeeModel
	locks    domain.LockManager
	store    domain.StateStore
	audit    domain.AuditStore
	bus      domain.ReportBus
	prices   domain.PriceCache
	notifier Notifier
	metrics  Recorder
	cooldown *cooldown
	now      func() time.Time
	logger   *slog.Logger

	cycleMu sync.Mutex

	reportsMu sync.RWMutex
	reports   []domain.CycleReport
}

// New validates deps and builds an Engine.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Engine, error) {
	switch {
	case len(deps.Venues) == 0:
		return nil, errors.New("engine: no venues")
	case deps.Registry == nil:
		return nil, errors.New("engine: nil registry")
	case deps.Ledger == nil:
		return nil, errors.New("engine: nil ledger")
	case deps.Planner == nil:
		return nil, errors.New("engine: nil planner")
	case deps.Fees == nil:
		return nil, errors.New("engine: nil fee model")
	}
	def := DefaultConfig()
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = def.VenueTimeout
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = def.OrderTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = def.LockWait
	}
	if cfg.KeepReports <= 0 {
		cfg.KeepReports = def.KeepReports
	}
	if cfg.ReportChannel == "" {
		cfg.ReportChannel = def.ReportChannel
	}
	if cfg.ReportStream == "" {
		cfg.ReportStream = def.ReportStream
	}
	if logger == nil {
		logger = slog.Default()
	}

	venues := make(map[string]domain.VenueAdapter, len(deps.Venues))
	for _, v := range deps.Venues {
		if _, dup := venues[v.Name()]; dup {
			return nil, fmt.Errorf("engine: duplicate venue %q", v.Name())
		}
		venues[v.Name()] = v
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewKeyedLocks()
	}
	now := func() time.Time { return time.Now().UTC() }

	return &Engine{
		cfg:      cfg,
		venues:   venues,
		registry: deps.Registry,
		ledger:   deps.Ledger,
		planner:  deps.Planner,
		fees:     deps.Fees,
		locks:    locks,
		store:    deps.Store,
		audit:    deps.Audit,
		bus:      deps.Bus,
		prices:   deps.Prices,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		cooldown: newCooldown(cfg.PairCooldown, now),
		now:      now,
		logger:   logger.With(slog.String("component", "engine")),
	}, nil
}

// Run executes a cycle immediately and then every interval until ctx is
// cancelled. Cycle failures are logged and retried on the next tick.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	e.logger.Info("engine: started",
		slog.Duration("interval", interval),
		slog.Bool("dry_run", e.cfg.DryRun),
		slog.String("destination", e.cfg.Destination.Venue+":"+e.cfg.Destination.Asset),
	)
	defer e.logger.Info("engine: stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := e.RunCycle(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("engine: cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle runs one cycle toward the configured destination and need.
func (e *Engine) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	return e.RunCycleFor(ctx, e.cfg.Destination, e.cfg.Need)
}

// RunCycleFor runs one cycle toward dst for need. An infeasible plan is not
// an error; the report says so. The error is non-nil only when the cycle
// could not run (aborted, bad input).
func (e *Engine) RunCycleFor(ctx context.Context, dst domain.Destination, need float64) (domain.CycleReport, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	report := domain.CycleReport{
		CycleID:   uuid.New().String(),
		State:     domain.CycleScanning,
		StartedAt: e.now(),
		DryRun:    e.cfg.DryRun,
	}
	log := e.logger.With(slog.String("cycle_id", report.CycleID))

	if need <= 0 || dst.Venue == "" || dst.Asset == "" {
		report.Errors = append(report.Errors, "invalid destination or need")
		return e.finish(ctx, report, domain.CycleAborted), fmt.Errorf("engine: invalid destination %+v need %v", dst, need)
	}

	// SCANNING
	scan := e.scan(ctx, e.ledger.Entries())
	report.UnavailableVenues = scan.unavailable
	report.Errors = append(report.Errors, scan.notes...)
	if err := ctx.Err(); err != nil {
		return e.finish(ctx, report, domain.CycleAborted), fmt.Errorf("engine: aborted after scan: %w", err)
	}

	// PLANNING
	report.State = domain.CyclePlanning
	snaps := e.planner.Snapshots(scan.entries, scan.prices)
	snaps = e.dropCooling(snaps)
	report.SnapshotsScanned = len(snaps)
	report.Opportunities = len(e.planner.Candidates(dst, snaps))
	if e.metrics != nil {
		var total float64
		for _, s := range snaps {
			total += s.Extractable
		}
		e.metrics.SurplusObserved(total, len(snaps))
	}

	plan, err := e.planner.Plan(dst, need, snaps)
	plan.ID = uuid.New().String()
	plan.CreatedAt = e.now()
	report.Plan = &plan
	if err != nil {
		if errors.Is(err, domain.ErrPlanInfeasible) {
			log.Info("engine: plan infeasible",
				slog.Float64("need", need),
				slog.Float64("delivered", plan.Delivered),
				slog.Int("snapshots", len(snaps)),
			)
			report.Errors = append(report.Errors, err.Error())
			return e.finish(ctx, report, domain.CycleInfeasible), nil
		}
		report.Errors = append(report.Errors, err.Error())
		return e.finish(ctx, report, domain.CycleAborted), err
	}

	if e.cfg.DryRun {
		log.Info("engine: dry run plan",
			slog.Int("entries", len(plan.Entries)),
			slog.Float64("delivered", plan.Delivered),
			slog.Float64("fees", plan.Fees),
		)
		return e.finish(ctx, report, domain.CycleSettled), nil
	}
	if err := ctx.Err(); err != nil {
		return e.finish(ctx, report, domain.CycleAborted), fmt.Errorf("engine: aborted before execution: %w", err)
	}

	// EXECUTING
	report.State = domain.CycleExecuting
	report.Executed = e.execute(ctx, plan, scan.rules, report.CycleID)
	for _, x := range report.Executed {
		if x.FilledQuantity > 0 {
			report.Moved += x.Proceeds
			report.FeesPaid += x.Fee
		}
		if x.Reason != "" && x.Status != domain.ExecFilled {
			report.Errors = append(report.Errors, fmt.Sprintf("%s:%s %s: %s", x.Venue, x.Instrument.Key(), x.Status, x.Reason))
		}
	}
	e.persist(ctx, report)
	return e.finish(ctx, report, domain.CycleSettled), nil
}

func (e *Engine) dropCooling(snaps []domain.PositionSnapshot) []domain.PositionSnapshot {
	out := snaps[:0:0]
	for _, s := range snaps {
		if e.cooldown.active(s.Key()) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Reports returns recent cycle reports, oldest first.
func (e *Engine) Reports() []domain.CycleReport {
	e.reportsMu.RLock()
	defer e.reportsMu.RUnlock()
	out := make([]domain.CycleReport, len(e.reports))
	copy(out, e.reports)
	return out
}

// LastReport returns the most recent report.
func (e *Engine) LastReport() (domain.CycleReport, bool) {
	e.reportsMu.RLock()
	defer e.reportsMu.RUnlock()
	if len(e.reports) == 0 {
		return domain.CycleReport{}, false
	}
	return e.reports[len(e.reports)-1], true
}
