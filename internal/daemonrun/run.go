// Package daemonrun builds the daemon's dependency graph and runs it in the
// foreground. The snatcherd binary and the CLI run command share it.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snatcher/internal/approval"
	"snatcher/internal/config"
	"snatcher/internal/daemon"
	"snatcher/internal/lease"
	"snatcher/internal/logging"
	"snatcher/internal/metrics"
	"snatcher/internal/notifications"
	"snatcher/internal/pipeline"
	"snatcher/internal/records"
	"snatcher/internal/services/embedder"
	"snatcher/internal/services/generator"
	"snatcher/internal/services/ingest"
	"snatcher/internal/services/reasoner"
	"snatcher/internal/services/wol"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Build wires the full dependency graph: adapters, lease manager, approval
// gate, pipeline controller, and the daemon around them.
func Build(cfg *config.Config, store *records.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	notifier, err := notifications.NewService(cfg)
	if err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()

	host := wol.NewController(cfg, logger)
	idle := time.Duration(cfg.Resource.IdleSeconds) * time.Second
	leaser := lease.NewManager(host, idle, logger, lease.WithMetrics(registry))

	gate := approval.NewGate(cfg, store, notifier, logger, approval.WithMetrics(registry))

	ctrl := pipeline.NewController(cfg, pipeline.Deps{
		Store:    store,
		Ingester: ingest.NewFetcher(cfg, logger),
		Fast:     embedder.NewScorer(cfg, logger),
		Deep:     reasoner.NewScorer(cfg, logger),
		Drafter:  generator.NewDrafter(cfg, logger),
		Leaser:   leaser,
		Gate:     gate,
		Notifier: notifier,
	}, logger, pipeline.WithMetrics(registry))

	return daemon.New(cfg, daemon.Deps{
		Store:    store,
		Pipeline: ctrl,
		Sweeper:  gate,
		Leaser:   leaser,
		Registry: registry,
	}, logger)
}

// Run starts the daemon and blocks until the context is cancelled or a
// termination signal arrives.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := records.Open(cfg)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}

	d, err := Build(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("daemon shutting down")
	return nil
}
