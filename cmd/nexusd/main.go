// nexusd runs the EBICS connection daemon: it keeps the configured
// bank connections initialized, fetches account statements and submits
// queued payment initiations on a fixed schedule.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/internal/scheduler"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/internal/storage/memory"
	"github.com/sirosfoundation/go-ebics/internal/storage/mongodb"
	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "nexusd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close(context.Background())

	keys, err := keystore.NewStore(cfg.KeyDir)
	if err != nil {
		return fmt.Errorf("opening key store: %w", err)
	}

	client := ebics.NewClient(&ebics.Config{
		Transport: &transport.Config{
			Timeout:            cfg.Transport.Timeout,
			MinTLSVersion:      tls.VersionTLS12,
			InsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
		},
		Logger: log,
	})

	log.Info("starting scheduler",
		"connections", len(cfg.Connections),
		"interval", cfg.Scheduler.Interval,
		"storage", cfg.Storage.Backend)

	sched := scheduler.New(client, store, keys, cfg, log)
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("shutting down")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:      cfg.Storage.URI,
			Database: cfg.Storage.Database,
		})
	default:
		return memory.NewStore(), nil
	}
}
