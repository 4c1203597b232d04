package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/engine"
	"github.com/alanyoungcy/reallocbot/internal/fees"
	"github.com/alanyoungcy/reallocbot/internal/server"
	"github.com/alanyoungcy/reallocbot/internal/server/handler"
)

const shutdownTimeout = 5 * time.Second

// PlanMode scans and plans every cycle interval without placing orders.
func (a *App) PlanMode(ctx context.Context, deps *Dependencies) error {
	return a.runCycles(ctx, deps, true)
}

// PaperMode runs full cycles against the paper venues.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	return a.runCycles(ctx, deps, false)
}

// ServerMode serves the status API over persisted state. Reports come from
// the report bus when Redis is enabled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")
	g, ctx := errgroup.WithContext(ctx)

	var reports handler.ReportSource
	if deps.Bus != nil {
		channel, stream := a.reportTargets()
		feed := newReportFeed(deps.Bus, channel, stream, a.cfg.Engine.KeepReports, a.logger)
		reports = feed
		g.Go(func() error { return feed.Run(ctx) })
	}
	a.startHTTPServer(ctx, g, deps, deps.Store, reports)

	return ignoreCanceled(g.Wait())
}

func (a *App) runCycles(ctx context.Context, deps *Dependencies, dryRun bool) error {
	a.logger.InfoContext(ctx, "app: starting cycles", slog.Bool("dry_run", dryRun))

	eng, err := engine.New(a.engineConfig(dryRun), engine.Deps{
		Venues:   deps.Venues,
		Registry: deps.Registry,
		Ledger:   deps.Ledger,
		Planner:  deps.Planner,
		Fees:     deps.Fees,
		Locks:    deps.Locks,
		Store:    deps.Store,
		Audit:    deps.Audit,
		Bus:      deps.Bus,
		Prices:   deps.Prices,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx, a.cfg.Engine.CycleInterval.Duration)
	})

	snap := newSnapshotter(deps.Ledger, deps.Store, deps.Archiver, a.cfg.State.SnapshotInterval.Duration, a.cfg.S3.Interval.Duration, a.logger)
	g.Go(func() error { return snap.Run(gctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, liveLedger{deps.Ledger}, eng)
	}

	return ignoreCanceled(g.Wait())
}

func (a *App) engineConfig(dryRun bool) engine.Config {
	e := a.cfg.Engine
	channel, stream := a.reportTargets()
	return engine.Config{
		Destination:   domain.Destination{Venue: e.DestinationVenue, Asset: strings.ToUpper(e.DestinationAsset)},
		Need:          e.Need,
		VenueTimeout:  e.VenueTimeout.Duration,
		OrderTimeout:  e.OrderTimeout.Duration,
		LockTTL:       e.LockTTL.Duration,
		LockWait:      e.LockWait.Duration,
		PairCooldown:  e.PairCooldown.Duration,
		DryRun:        dryRun,
		ReportChannel: channel,
		ReportStream:  stream,
		KeepReports:   e.KeepReports,
	}
}

// reportTargets names the bus channel and stream under the Redis key
// prefix so the server mode of the same deployment finds them.
func (a *App) reportTargets() (channel, stream string) {
	prefix := a.cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = "realloc"
	}
	return prefix + ":reports", prefix + ":reports:stream"
}

// startHTTPServer adds the status API and its shutdown watcher to g. ledger
// and reports may differ by mode: live in-memory views while cycles run,
// persisted state in server mode.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, ledger handler.LedgerReader, reports handler.ReportSource) {
	e := a.cfg.Engine
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: &handler.StatusHandler{
			Mode:        a.cfg.Mode,
			Destination: e.DestinationVenue + ":" + strings.ToUpper(e.DestinationAsset),
			Need:        e.Need,
			Venues:      a.cfg.Venues.Enabled(),
			FeeVersion:  fees.Version,
			StartedAt:   time.Now(),
		},
		Ledger:    handler.NewLedgerHandler(ledger, a.logger),
		Transfers: handler.NewTransferHandler(deps.Store, a.logger),
		Metrics:   deps.Metrics.Handler(),
	}
	if reports != nil {
		handlers.Reports = handler.NewReportHandler(reports, a.logger)
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
