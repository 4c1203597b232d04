package config

import "github.com/alanyoungcy/reallocbot/internal/fees"

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// for logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Venues.Alpaca.KeyID)
	redact(&out.Venues.Alpaca.SecretKey)
	redact(&out.Secrets.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices and maps are copied so the redacted value cannot alias the
	// original.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Paper.Positions = append([]PaperPosition(nil), cfg.Paper.Positions...)
	if cfg.Paper.Balances != nil {
		out.Paper.Balances = make(map[string]map[string]float64, len(cfg.Paper.Balances))
		for venue, bals := range cfg.Paper.Balances {
			m := make(map[string]float64, len(bals))
			for k, v := range bals {
				m[k] = v
			}
			out.Paper.Balances[venue] = m
		}
	}
	if cfg.Fees != nil {
		out.Fees = make(map[string]fees.Schedule, len(cfg.Fees))
		for k, v := range cfg.Fees {
			out.Fees[k] = v
		}
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
