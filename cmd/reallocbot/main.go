// Command reallocbot runs the cost-basis-gated reallocation engine. It loads
// and validates configuration, wires dependencies and runs the configured
// mode until SIGINT or SIGTERM.
//
// "reallocbot seal-secrets -in creds.json" encrypts a plaintext credentials
// file into the vault named by secrets.path.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/reallocbot/internal/app"
	"github.com/alanyoungcy/reallocbot/internal/config"
	"github.com/alanyoungcy/reallocbot/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "seal-secrets" {
		if err := sealSecrets(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "seal-secrets: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (plan, paper, server)")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("reallocbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		application.Close()
		os.Exit(1)
	}
	logger.Info("reallocbot stopped")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// sealSecrets reads {"venue": {"key_id": ..., "secret": ...}} from -in and
// writes the encrypted vault to the configured secrets path.
func sealSecrets(args []string) error {
	fs := flag.NewFlagSet("seal-secrets", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	in := fs.String("in", "", "plaintext credentials JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Secrets.Path == "" || cfg.Secrets.Password == "" {
		return errors.New("secrets.path and secrets.password (or REALLOC_SECRETS_*) must be set")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	var secrets crypto.Secrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("decode %s: %w", *in, err)
	}
	if err := crypto.Save(cfg.Secrets.Path, secrets, cfg.Secrets.Password); err != nil {
		return err
	}
	fmt.Printf("sealed %d venue credential(s) into %s\n", len(secrets), cfg.Secrets.Path)
	return nil
}
