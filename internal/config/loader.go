package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REALLOC_"

// Load reads the TOML file at path over the built-in defaults, then applies
// REALLOC_* environment overrides. An empty path skips the file. The result
// is not validated; call Config.Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose REALLOC_* variable is set, so
// secrets can be injected at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.DestinationVenue, "REALLOC_ENGINE_DESTINATION_VENUE")
	setStr(&cfg.Engine.DestinationAsset, "REALLOC_ENGINE_DESTINATION_ASSET")
	setFloat64(&cfg.Engine.Need, "REALLOC_ENGINE_NEED")
	setDuration(&cfg.Engine.CycleInterval, "REALLOC_ENGINE_CYCLE_INTERVAL")
	setDuration(&cfg.Engine.VenueTimeout, "REALLOC_ENGINE_VENUE_TIMEOUT")
	setDuration(&cfg.Engine.OrderTimeout, "REALLOC_ENGINE_ORDER_TIMEOUT")
	setDuration(&cfg.Engine.PairCooldown, "REALLOC_ENGINE_PAIR_COOLDOWN")
	setDuration(&cfg.Engine.CatalogTTL, "REALLOC_ENGINE_CATALOG_TTL")
	setFloat64(&cfg.Engine.MinProfitAbsolute, "REALLOC_ENGINE_MIN_PROFIT_THRESHOLD_ABSOLUTE")
	setFloat64(&cfg.Engine.SafetyBufferRatio, "REALLOC_ENGINE_SAFETY_BUFFER_RATIO")
	setFloat64(&cfg.Engine.MaxExtractionRate, "REALLOC_ENGINE_MAX_EXTRACTION_RATE_PER_CYCLE")
	setFloat64(&cfg.Engine.MinTransferValue, "REALLOC_ENGINE_MIN_TRANSFER_VALUE")

	// ── Venues ──
	setBool(&cfg.Venues.Kraken.Enabled, "REALLOC_VENUES_KRAKEN_ENABLED")
	setStr(&cfg.Venues.Kraken.BaseURL, "REALLOC_VENUES_KRAKEN_BASE_URL")
	setBool(&cfg.Venues.BinanceUS.Enabled, "REALLOC_VENUES_BINANCEUS_ENABLED")
	setStr(&cfg.Venues.BinanceUS.BaseURL, "REALLOC_VENUES_BINANCEUS_BASE_URL")
	setBool(&cfg.Venues.Coinbase.Enabled, "REALLOC_VENUES_COINBASE_ENABLED")
	setStr(&cfg.Venues.Coinbase.BaseURL, "REALLOC_VENUES_COINBASE_BASE_URL")
	setBool(&cfg.Venues.Alpaca.Enabled, "REALLOC_VENUES_ALPACA_ENABLED")
	setStr(&cfg.Venues.Alpaca.TradingURL, "REALLOC_VENUES_ALPACA_TRADING_URL")
	setStr(&cfg.Venues.Alpaca.DataURL, "REALLOC_VENUES_ALPACA_DATA_URL")
	setStr(&cfg.Venues.Alpaca.KeyID, "REALLOC_VENUES_ALPACA_KEY_ID")
	setStr(&cfg.Venues.Alpaca.SecretKey, "REALLOC_VENUES_ALPACA_SECRET_KEY")

	// ── Secrets ──
	setStr(&cfg.Secrets.Path, "REALLOC_SECRETS_PATH")
	setStr(&cfg.Secrets.Password, "REALLOC_SECRETS_PASSWORD")

	// ── Paper ──
	setFloat64(&cfg.Paper.Slippage, "REALLOC_PAPER_SLIPPAGE")

	// ── State ──
	setStr(&cfg.State.Backend, "REALLOC_STATE_BACKEND")
	setStr(&cfg.State.Path, "REALLOC_STATE_PATH")
	setDuration(&cfg.State.SnapshotInterval, "REALLOC_STATE_SNAPSHOT_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "REALLOC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "REALLOC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "REALLOC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "REALLOC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "REALLOC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "REALLOC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "REALLOC_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "REALLOC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "REALLOC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "REALLOC_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.Audit, "REALLOC_POSTGRES_AUDIT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REALLOC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REALLOC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REALLOC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REALLOC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REALLOC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REALLOC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REALLOC_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REALLOC_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "REALLOC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "REALLOC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REALLOC_S3_REGION")
	setStr(&cfg.S3.Bucket, "REALLOC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REALLOC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REALLOC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REALLOC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "REALLOC_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "REALLOC_S3_PREFIX")
	setInt(&cfg.S3.Keep, "REALLOC_S3_KEEP")
	setDuration(&cfg.S3.Interval, "REALLOC_S3_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REALLOC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REALLOC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "REALLOC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "REALLOC_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "REALLOC_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "REALLOC_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REALLOC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REALLOC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REALLOC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "REALLOC_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Throttle, "REALLOC_NOTIFY_THROTTLE")

	// ── Top-level ──
	setStr(&cfg.Mode, "REALLOC_MODE")
	setStr(&cfg.LogLevel, "REALLOC_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
