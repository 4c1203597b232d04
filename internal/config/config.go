// Package config defines the reallocation bot configuration and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/fees"
	"github.com/alanyoungcy/reallocbot/internal/symbol"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by REALLOC_* environment variables.
type Config struct {
	Engine   EngineConfig             `toml:"engine"`
	Fees     map[string]fees.Schedule `toml:"fees"`
	Venues   VenuesConfig             `toml:"venues"`
	Secrets  SecretsConfig            `toml:"secrets"`
	Paper    PaperConfig              `toml:"paper"`
	State    StateConfig              `toml:"state"`
	Postgres PostgresConfig           `toml:"postgres"`
	Redis    RedisConfig              `toml:"redis"`
	S3       S3Config                 `toml:"s3"`
	Server   ServerConfig             `toml:"server"`
	Notify   NotifyConfig             `toml:"notify"`
	Mode     string                   `toml:"mode"`
	LogLevel string                   `toml:"log_level"`
}

// EngineConfig holds the planning and execution parameters.
type EngineConfig struct {
	DestinationVenue string   `toml:"destination_venue"`
	DestinationAsset string   `toml:"destination_asset"`
	Need             float64  `toml:"need"`
	CycleInterval    duration `toml:"cycle_interval"`
	VenueTimeout     duration `toml:"venue_timeout"`
	OrderTimeout     duration `toml:"order_timeout"`
	LockTTL          duration `toml:"lock_ttl"`
	LockWait         duration `toml:"lock_wait"`
	PairCooldown     duration `toml:"pair_cooldown"`
	CatalogTTL       duration `toml:"catalog_ttl"`
	KeepReports      int      `toml:"keep_reports"`

	MinProfitAbsolute float64 `toml:"min_profit_threshold_absolute"`
	SafetyBufferRatio float64 `toml:"safety_buffer_ratio"`
	MaxExtractionRate float64 `toml:"max_extraction_rate_per_cycle"`
	MinTransferValue  float64 `toml:"min_transfer_value"`
	FeeOverheadMargin float64 `toml:"fee_overhead_margin"`
	FeasibilityRatio  float64 `toml:"feasibility_ratio"`
	SameVenueWeight   float64 `toml:"same_venue_weight"`
	ExtractableWeight float64 `toml:"extractable_weight"`
}

// VenueConfig is a public market-data endpoint.
type VenueConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// AlpacaConfig adds the split trading/data hosts and API keys Alpaca needs.
type AlpacaConfig struct {
	Enabled    bool   `toml:"enabled"`
	TradingURL string `toml:"trading_url"`
	DataURL    string `toml:"data_url"`
	KeyID      string `toml:"key_id"`
	SecretKey  string `toml:"secret_key"`
}

// VenuesConfig lists the supported venues.
type VenuesConfig struct {
	Kraken    VenueConfig  `toml:"kraken"`
	BinanceUS VenueConfig  `toml:"binanceus"`
	Coinbase  VenueConfig  `toml:"coinbase"`
	Alpaca    AlpacaConfig `toml:"alpaca"`
}

// Enabled returns the enabled venue names in a stable order.
func (v VenuesConfig) Enabled() []string {
	var out []string
	if v.Kraken.Enabled {
		out = append(out, domain.VenueKraken)
	}
	if v.BinanceUS.Enabled {
		out = append(out, domain.VenueBinanceUS)
	}
	if v.Coinbase.Enabled {
		out = append(out, domain.VenueCoinbase)
	}
	if v.Alpaca.Enabled {
		out = append(out, domain.VenueAlpaca)
	}
	return out
}

// SecretsConfig points at an encrypted credentials vault.
type SecretsConfig struct {
	Path     string `toml:"path"`
	Password string `toml:"password"`
}

// PaperPosition is a starting holding for a paper venue. It is recorded as a
// buy fill so the ledger can be rebuilt from it.
type PaperPosition struct {
	Venue      string    `toml:"venue"`
	Instrument string    `toml:"instrument"`
	Quantity   float64   `toml:"quantity"`
	Price      float64   `toml:"price"`
	Fee        float64   `toml:"fee"`
	AcquiredAt time.Time `toml:"acquired_at"`
}

// PaperConfig seeds the paper venues.
type PaperConfig struct {
	Slippage  float64                       `toml:"slippage"`
	Balances  map[string]map[string]float64 `toml:"balances"`
	Positions []PaperPosition               `toml:"positions"`
}

// StateConfig selects where the ledger snapshot and history live.
type StateConfig struct {
	// Backend is "file" or "postgres".
	Backend          string   `toml:"backend"`
	Path             string   `toml:"path"`
	SnapshotInterval duration `toml:"snapshot_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
	Audit          bool     `toml:"audit"`
}

// RedisConfig holds Redis connection parameters. When enabled it backs the
// catalog cache, price cache, pair locks and report bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds object storage parameters for snapshot archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	Keep           int    `toml:"keep"`
	// Interval is how often snapshots are archived.
	Interval duration `toml:"interval"`
}

// ServerConfig holds the status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps requests per client per RateWindow. It needs Redis;
	// zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds alert channel parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Throttle          duration `toml:"throttle"`
}

// duration lets TOML carry strings like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs paper cycles against Kraken and
// Coinbase public data with file persistence.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			DestinationVenue:  domain.VenueKraken,
			DestinationAsset:  "USD",
			Need:              100,
			CycleInterval:     duration{5 * time.Minute},
			VenueTimeout:      duration{10 * time.Second},
			OrderTimeout:      duration{30 * time.Second},
			LockTTL:           duration{2 * time.Minute},
			LockWait:          duration{30 * time.Second},
			CatalogTTL:        duration{symbol.DefaultCatalogTTL},
			KeepReports:       100,
			MinProfitAbsolute: 0.01,
			SafetyBufferRatio: 0.01,
			MaxExtractionRate: 0.5,
			MinTransferValue:  10,
			FeeOverheadMargin: 0.01,
			FeasibilityRatio:  0.9,
			SameVenueWeight:   100,
			ExtractableWeight: 1,
		},
		Venues: VenuesConfig{
			Kraken:   VenueConfig{Enabled: true},
			Coinbase: VenueConfig{Enabled: true},
		},
		Paper: PaperConfig{Slippage: 0.0005},
		State: StateConfig{
			Backend:          "file",
			Path:             "data/state.json",
			SnapshotInterval: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "realloc",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   5,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "realloc",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "realloc-archive",
			ForcePathStyle: true,
			Prefix:         "archive",
			Keep:           30,
			Interval:       duration{time.Hour},
		},
		Server: ServerConfig{
			Port:       8080,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:   []string{"cycle_settled", "cycle_infeasible", "order_rejected", "venue_unavailable"},
			Throttle: duration{15 * time.Minute},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"plan":   true,
	"paper":  true,
	"server": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: plan, paper, server)", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	e := c.Engine
	enabled := c.Venues.Enabled()
	if c.Mode != "server" {
		if len(enabled) == 0 {
			errs = append(errs, "venues: at least one venue must be enabled")
		}
		if e.DestinationVenue == "" || e.DestinationAsset == "" {
			errs = append(errs, "engine: destination_venue and destination_asset must be set")
		} else if !contains(enabled, e.DestinationVenue) {
			errs = append(errs, fmt.Sprintf("engine: destination_venue %q is not an enabled venue", e.DestinationVenue))
		}
		if e.Need <= 0 {
			errs = append(errs, "engine: need must be > 0")
		}
		if e.CycleInterval.Duration <= 0 {
			errs = append(errs, "engine: cycle_interval must be > 0")
		}
	}
	if e.VenueTimeout.Duration <= 0 || e.OrderTimeout.Duration <= 0 {
		errs = append(errs, "engine: venue_timeout and order_timeout must be > 0")
	}
	if e.MinProfitAbsolute < 0 {
		errs = append(errs, "engine: min_profit_threshold_absolute must be >= 0")
	}
	if e.SafetyBufferRatio < 0 || e.SafetyBufferRatio >= 1 {
		errs = append(errs, "engine: safety_buffer_ratio must be in [0, 1)")
	}
	if e.MaxExtractionRate <= 0 || e.MaxExtractionRate > 1 {
		errs = append(errs, "engine: max_extraction_rate_per_cycle must be in (0, 1]")
	}
	if e.MinTransferValue < 0 {
		errs = append(errs, "engine: min_transfer_value must be >= 0")
	}
	if e.FeasibilityRatio <= 0 || e.FeasibilityRatio > 1 {
		errs = append(errs, "engine: feasibility_ratio must be in (0, 1]")
	}

	if c.Venues.Alpaca.Enabled && c.Secrets.Path == "" &&
		(c.Venues.Alpaca.KeyID == "" || c.Venues.Alpaca.SecretKey == "") {
		errs = append(errs, "venues.alpaca: key_id and secret_key (or secrets.path) are required")
	}
	if c.Secrets.Path != "" && c.Secrets.Password == "" {
		errs = append(errs, "secrets: password is required when path is set")
	}

	if c.Paper.Slippage < 0 || c.Paper.Slippage >= 0.1 {
		errs = append(errs, "paper: slippage must be in [0, 0.1)")
	}
	for i, p := range c.Paper.Positions {
		if !contains(enabled, p.Venue) {
			errs = append(errs, fmt.Sprintf("paper.positions[%d]: venue %q is not enabled", i, p.Venue))
		}
		if _, err := symbol.ParseSymbol(p.Instrument); err != nil {
			errs = append(errs, fmt.Sprintf("paper.positions[%d]: %v", i, err))
		}
		if p.Quantity <= 0 || p.Price <= 0 || p.Fee < 0 {
			errs = append(errs, fmt.Sprintf("paper.positions[%d]: quantity and price must be > 0, fee >= 0", i))
		}
	}

	switch c.State.Backend {
	case "file":
		if c.State.Path == "" {
			errs = append(errs, "state: path must not be empty for the file backend")
		}
	case "postgres":
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
	default:
		errs = append(errs, fmt.Sprintf("state: unknown backend %q (valid: file, postgres)", c.State.Backend))
	}
	if c.State.SnapshotInterval.Duration <= 0 {
		errs = append(errs, "state: snapshot_interval must be > 0")
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			errs = append(errs, "s3: bucket and region must not be empty")
		}
		if c.S3.Keep < 0 {
			errs = append(errs, "s3: keep must be >= 0")
		}
		if c.S3.Interval.Duration <= 0 {
			errs = append(errs, "s3: interval must be > 0")
		}
	}
	if (c.Server.Enabled || c.Mode == "server") && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0) {
		errs = append(errs, "server: rate_limit must be >= 0 with a positive rate_window")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
