// Package daemon runs the evaluation pipeline in the background: a worker
// pool advancing actionable records, the approval sweeper, and the HTTP API.
// A file lock enforces single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"snatcher/internal/api"
	"snatcher/internal/config"
	"snatcher/internal/lease"
	"snatcher/internal/logging"
	"snatcher/internal/metrics"
	"snatcher/internal/records"
	"snatcher/internal/services"
)

// Pipeline is the controller surface the daemon drives. The pipeline
// controller satisfies it.
type Pipeline interface {
	api.Pipeline
	ListActionable(ctx context.Context, limit int) ([]*records.Record, error)
}

// Sweeper reaps expired approval requests and sends reminders.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Deps bundles the collaborators the daemon wires together.
type Deps struct {
	Store    *records.Store
	Pipeline Pipeline
	Sweeper  Sweeper
	Leaser   *lease.Manager
	Registry *metrics.Registry
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	pipeline Pipeline
	sweeper  Sweeper
	leaser   *lease.Manager
	registry *metrics.Registry
	service  *api.RecordService
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	pollInterval  time.Duration
	errorInterval time.Duration
	sweepInterval time.Duration
	workers       int

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	work    chan string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Pipeline == nil || deps.Sweeper == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, pipeline, sweeper, and logger")
	}

	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	poll := time.Duration(cfg.Workflow.PollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	errorInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorInterval <= 0 {
		errorInterval = poll
	}
	sweep := time.Duration(cfg.Approval.SweepIntervalSeconds) * time.Second
	if sweep <= 0 {
		sweep = time.Minute
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "snatcherd.lock")
	d := &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		store:         deps.Store,
		pipeline:      deps.Pipeline,
		sweeper:       deps.Sweeper,
		leaser:        deps.Leaser,
		registry:      deps.Registry,
		service:       api.NewRecordService(deps.Pipeline, deps.Store),
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		pollInterval:  poll,
		errorInterval: errorInterval,
		sweepInterval: sweep,
		workers:       workers,
		work:          make(chan string),
		inflight:      make(map[string]struct{}),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the worker pool, the approval
// sweeper, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another snatcher daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.server.start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(d.workers + 2)
	for i := 0; i < d.workers; i++ {
		go d.runWorker(runCtx)
	}
	go d.runDispatcher(runCtx)
	go d.runSweeper(runCtx)

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.workers))
	return nil
}

// Stop terminates background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases store resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service exposes the transport service layer to the HTTP handlers.
func (d *Daemon) Service() *api.RecordService {
	return d.service
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       filepath.Join(d.cfg.Paths.DataDir, "records.db"),
		LockFilePath: d.lockPath,
	}
	if summary, err := d.store.Stats(ctx); err == nil {
		status.Stats = api.FromStats(summary)
	} else {
		d.logger.Warn("stats unavailable", logging.Error(err))
	}
	if d.leaser != nil {
		status.Lease = d.leaser.Snapshot()
	}
	if d.registry != nil {
		status.Metrics = d.registry.Snapshot()
	}
	return status
}

// runDispatcher polls the store for actionable records and feeds the worker
// pool. Records already handed to a worker stay out of later batches until
// the worker finishes.
func (d *Daemon) runDispatcher(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		recs, err := d.pipeline.ListActionable(ctx, d.workers*2)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("failed to fetch actionable records", logging.Error(err))
			if !sleepCtx(ctx, d.errorInterval) {
				return
			}
			continue
		}

		queued := 0
		for _, rec := range recs {
			if !d.markInflight(rec.ID) {
				continue
			}
			select {
			case d.work <- rec.ID:
				queued++
			case <-ctx.Done():
				d.clearInflight(rec.ID)
				return
			}
		}

		if queued == 0 {
			if !sleepCtx(ctx, d.pollInterval) {
				return
			}
		}
	}
}

// runWorker advances one record at a time. Stage handlers persist their own
// failure bookkeeping, so errors here are only logged.
func (d *Daemon) runWorker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.work:
			if _, err := d.pipeline.Advance(ctx, id); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, services.ErrPrecondition) {
					d.logger.Warn("advance failed",
						logging.String(logging.FieldRecordID, id),
						logging.Error(err))
				}
			}
			d.clearInflight(id)
		}
	}
}

// runSweeper periodically reaps expired approval requests and sends reminders.
func (d *Daemon) runSweeper(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn("approval sweep failed", logging.Error(err))
			}
		}
	}
}

func (d *Daemon) markInflight(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[id]; ok {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Daemon) clearInflight(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
