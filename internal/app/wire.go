package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/alanyoungcy/reallocbot/internal/blob/s3"
	"github.com/alanyoungcy/reallocbot/internal/cache/redis"
	"github.com/alanyoungcy/reallocbot/internal/config"
	"github.com/alanyoungcy/reallocbot/internal/crypto"
	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/fees"
	"github.com/alanyoungcy/reallocbot/internal/ledger"
	"github.com/alanyoungcy/reallocbot/internal/metrics"
	"github.com/alanyoungcy/reallocbot/internal/notify"
	"github.com/alanyoungcy/reallocbot/internal/planner"
	"github.com/alanyoungcy/reallocbot/internal/platform/alpaca"
	"github.com/alanyoungcy/reallocbot/internal/platform/binanceus"
	"github.com/alanyoungcy/reallocbot/internal/platform/coinbase"
	"github.com/alanyoungcy/reallocbot/internal/platform/kraken"
	"github.com/alanyoungcy/reallocbot/internal/platform/paper"
	"github.com/alanyoungcy/reallocbot/internal/server/handler"
	"github.com/alanyoungcy/reallocbot/internal/state"
	"github.com/alanyoungcy/reallocbot/internal/store/postgres"
	"github.com/alanyoungcy/reallocbot/internal/symbol"
)

// Dependencies bundles everything the run modes need. It is built by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Core
	Registry *symbol.Registry
	Fees     *fees.Model
	Ledger   *ledger.Ledger
	Planner  *planner.Planner
	Venues   []domain.VenueAdapter

	// Persistence
	Store    domain.StateStore
	Audit    domain.AuditStore
	Archiver domain.Archiver

	// Shared infrastructure, nil when Redis is disabled
	Locks       domain.LockManager
	Bus         domain.ReportBus
	Prices      domain.PriceCache
	RateLimiter domain.RateLimiter

	Notifier *notify.Notifier
	Metrics  *metrics.Collector
	Checks   map[string]handler.Pinger
}

// pingFunc adapts a health probe to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

const venueHTTPTimeout = 15 * time.Second

// Wire constructs the dependency graph for cfg. Venues are only built for
// modes that run cycles.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Pinger),
	}

	// --- Persistence ---
	needPG := cfg.State.Backend == "postgres" || cfg.Postgres.Audit
	if needPG {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Checks["postgres"] = pg.Pool()
		if cfg.State.Backend == "postgres" {
			deps.Store = postgres.NewStateStore(pg.Pool())
		}
		if cfg.Postgres.Audit {
			deps.Audit = postgres.NewAuditStore(pg.Pool())
		}
	}
	if deps.Store == nil {
		f, err := state.Open(cfg.State.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: state file: %w", err))
		}
		deps.Store = f
	}

	// --- Redis ---
	var catalogCache domain.CatalogCache
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Checks["redis"] = rc
		catalogCache = redis.NewCatalogCache(rc)
		deps.Prices = redis.NewPriceCache(rc)
		deps.Locks = redis.NewLockManager(rc)
		deps.Bus = redis.NewReportBus(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Checks["s3"] = pingFunc(sc.Health)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewBucketStore(sc),
			s3blob.ArchiverConfig{Prefix: cfg.S3.Prefix, Keep: cfg.S3.Keep}, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, notify.Options{
		Events:   cfg.Notify.Events,
		Throttle: cfg.Notify.Throttle.Duration,
	}, logger)

	// --- Core ---
	deps.Fees = fees.New(cfg.Fees)
	deps.Ledger = ledger.New(ledger.Config{MinProfitAbsolute: cfg.Engine.MinProfitAbsolute}, logger)
	pcfg := plannerConfig(cfg.Engine)
	if err := pcfg.Validate(); err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Planner = planner.New(pcfg, deps.Fees)

	if cfg.Mode == "server" {
		return deps, cleanup, nil
	}

	sources, err := marketData(cfg)
	if err != nil {
		return fail(err)
	}
	catalogs := make(map[string]domain.CatalogSource, len(sources))
	for name, md := range sources {
		catalogs[name] = md
	}
	deps.Registry = symbol.NewRegistry(catalogs, symbol.Options{
		TTL:    cfg.Engine.CatalogTTL.Duration,
		Shared: catalogCache,
	}, logger)

	network := paper.NewNetwork(func(f domain.Fill) {
		if err := deps.Ledger.RecordBuy(f.Venue, f.Instrument, f.Quantity, f.Price, f.Fee); err != nil {
			logger.Error("wire: record destination buy failed",
				slog.String("venue", f.Venue),
				slog.String("instrument", f.Instrument.Key()),
				slog.String("error", err.Error()),
			)
		}
	})
	venues, err := paperVenues(cfg, sources, deps.Registry, deps.Fees, network)
	if err != nil {
		return fail(err)
	}
	deps.Venues = venues

	if err := restoreLedger(ctx, deps.Ledger, deps.Store, deps.Archiver, venues, logger); err != nil {
		return fail(err)
	}
	return deps, cleanup, nil
}

func plannerConfig(e config.EngineConfig) planner.Config {
	return planner.Config{
		SafetyBufferRatio: e.SafetyBufferRatio,
		MaxExtractionRate: e.MaxExtractionRate,
		MinTransferValue:  e.MinTransferValue,
		FeeOverheadMargin: e.FeeOverheadMargin,
		FeasibilityRatio:  e.FeasibilityRatio,
		SameVenueWeight:   e.SameVenueWeight,
		ExtractableWeight: e.ExtractableWeight,
	}
}

// marketData builds a public market-data client per enabled venue. Alpaca
// keys come from the config or, when set, the encrypted secrets vault.
func marketData(cfg *config.Config) (map[string]domain.MarketData, error) {
	httpClient := &http.Client{Timeout: venueHTTPTimeout}
	out := make(map[string]domain.MarketData)

	v := cfg.Venues
	if v.Kraken.Enabled {
		out[domain.VenueKraken] = kraken.NewClient(v.Kraken.BaseURL, httpClient)
	}
	if v.BinanceUS.Enabled {
		out[domain.VenueBinanceUS] = binanceus.NewClient(v.BinanceUS.BaseURL, httpClient)
	}
	if v.Coinbase.Enabled {
		out[domain.VenueCoinbase] = coinbase.NewClient(v.Coinbase.BaseURL, httpClient)
	}
	if v.Alpaca.Enabled {
		creds := alpaca.Credentials{KeyID: v.Alpaca.KeyID, SecretKey: v.Alpaca.SecretKey}
		if cfg.Secrets.Path != "" {
			secrets, err := crypto.Load(cfg.Secrets.Path, cfg.Secrets.Password)
			if err != nil {
				return nil, fmt.Errorf("wire: secrets: %w", err)
			}
			if s, ok := secrets[domain.VenueAlpaca]; ok {
				creds = alpaca.Credentials{KeyID: s.KeyID, SecretKey: s.Secret}
			}
		}
		out[domain.VenueAlpaca] = alpaca.NewClient(v.Alpaca.TradingURL, v.Alpaca.DataURL, creds, httpClient)
	}
	return out, nil
}

// paperVenues creates one linked paper account per market-data source and
// seeds it with the configured balances and positions.
func paperVenues(cfg *config.Config, sources map[string]domain.MarketData, reg paper.Resolver, fm *fees.Model, network *paper.Network) ([]domain.VenueAdapter, error) {
	byName := make(map[string]*paper.Venue, len(sources))
	var out []domain.VenueAdapter
	for _, name := range cfg.Venues.Enabled() {
		pv := paper.New(name, sources[name], reg, fm, paper.Options{
			Slippage: cfg.Paper.Slippage,
			Network:  network,
		})
		byName[name] = pv
		out = append(out, pv)
	}

	for venue, balances := range cfg.Paper.Balances {
		pv, ok := byName[venue]
		if !ok {
			return nil, fmt.Errorf("wire: paper balances for disabled venue %q", venue)
		}
		for asset, amount := range balances {
			pv.Deposit(symbol.NormalizeAsset(asset), amount)
		}
	}
	for i, p := range cfg.Paper.Positions {
		inst, err := symbol.ParseSymbol(p.Instrument)
		if err != nil {
			return nil, fmt.Errorf("wire: paper position %d: %w", i, err)
		}
		at := p.AcquiredAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		byName[p.Venue].Seed(inst, p.Quantity, p.Price, p.Fee, at)
	}
	return out, nil
}

// restoreLedger loads the last local snapshot, then the newest archived one
// when archiver is set. With neither it replays the fill history every venue
// can report.
func restoreLedger(ctx context.Context, l *ledger.Ledger, store domain.LedgerStore, archiver domain.Archiver, venues []domain.VenueAdapter, logger *slog.Logger) error {
	records, err := store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("wire: load ledger: %w", err)
	}
	source := "snapshot"
	if len(records) == 0 && archiver != nil {
		records, err = archiver.LatestLedger(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			logger.Warn("wire: archived ledger unavailable", slog.String("error", err.Error()))
			records = nil
		default:
			source = "archive"
		}
	}
	if len(records) > 0 {
		if err := l.Restore(records); err != nil {
			return fmt.Errorf("wire: restore ledger: %w", err)
		}
		logger.Info("wire: ledger restored",
			slog.String("source", source),
			slog.Int("entries", l.Len()),
		)
		return nil
	}

	var fills []domain.Fill
	for _, v := range venues {
		fh, ok := v.(domain.FillHistory)
		if !ok {
			continue
		}
		vf, err := fh.Fills(ctx)
		if err != nil {
			return fmt.Errorf("wire: fills from %s: %w", v.Name(), err)
		}
		fills = append(fills, vf...)
	}
	if _, err := l.Rebuild(fills); err != nil {
		return fmt.Errorf("wire: rebuild ledger: %w", err)
	}
	return nil
}
