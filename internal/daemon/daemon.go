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

	"tubefront/internal/catalog"
	"tubefront/internal/config"
	"tubefront/internal/credentials"
	"tubefront/internal/deps"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/logging"
	"tubefront/internal/preflight"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
)

// CatalogFetcher probes a URL for its renditions.
type CatalogFetcher interface {
	Fetch(ctx context.Context, url, credential string) (*catalog.Catalog, error)
}

// Credentials provisions cookie leases and reports their state.
type Credentials interface {
	Provision(scope string) *credentials.Lease
	Check() credentials.Status
}

// Components are the collaborators the daemon serves over HTTP. Ledger is
// optional.
type Components struct {
	Downloads   *download.Service
	Catalog     CatalogFetcher
	Credentials Credentials
	Outputs     *scratch.Manager
	Tracker     progress.Tracker
	Ledger      *jobs.Store
}

// Daemon owns the HTTP surface and background hygiene, and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comp   Components

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	Bind            string
	JobsDBPath      string
	LockFilePath    string
	ScratchDir      string
	ScratchFiles    int
	ProgressBackend string
	Active          []download.ActiveJob
	Jobs            *jobs.Summary
	Credentials     credentials.Status
	Dependencies    []deps.Status
}

// MaintenanceResult summarizes one hygiene pass.
type MaintenanceResult struct {
	ScratchRemoved int
	ScratchErrors  int
	ProgressPruned int
	JobsPruned     int64
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comp Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comp.Downloads == nil || comp.Catalog == nil || comp.Credentials == nil || comp.Outputs == nil || comp.Tracker == nil {
		return nil, errors.New("daemon requires config, downloads, catalog, credentials, outputs, and tracker")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		comp:     comp,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, fails jobs left in flight by a previous
// run, and launches the API server and the hygiene loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tubefront daemon instance is already running")
	}

	if d.comp.Ledger != nil {
		if n, err := d.comp.Ledger.FailInterrupted(ctx); err != nil {
			logging.WarnWithContext(d.logger, "interrupted jobs not reconciled", "ledger_reconcile_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale in-flight rows remain until pruned"),
			)
		} else if n > 0 {
			d.logger.Info("marked interrupted jobs failed", logging.Int64("count", n))
		}
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.wg.Add(1)
	go d.maintenanceLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("tubefront daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.api.addr()),
	)
	return nil
}

// Stop shuts down the API server and hygiene loop and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tubefront daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.comp.Tracker != nil {
		errs = append(errs, d.comp.Tracker.Close())
	}
	if d.comp.Ledger != nil {
		errs = append(errs, d.comp.Ledger.Close())
	}
	return errors.Join(errs...)
}

// Addr returns the bound API address once started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		Bind:            d.api.addr(),
		LockFilePath:    d.lockPath,
		ScratchDir:      d.comp.Outputs.Dir(),
		ProgressBackend: d.cfg.Progress.Backend,
		Active:          d.comp.Downloads.Active(),
		Credentials:     d.comp.Credentials.Check(),
		Dependencies:    preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if files, err := d.comp.Outputs.List(); err == nil {
		status.ScratchFiles = len(files)
	}
	if d.comp.Ledger != nil {
		status.JobsDBPath = d.comp.Ledger.Path()
		if summary, err := d.comp.Ledger.Summary(ctx); err == nil {
			status.Jobs = &summary
		} else {
			d.logger.Warn("job summary unavailable", logging.Error(err))
		}
	}
	return status
}

// Maintain runs one hygiene pass: leaked scratch files, expired progress
// snapshots and old ledger rows.
func (d *Daemon) Maintain(ctx context.Context) MaintenanceResult {
	var result MaintenanceResult

	sweep := d.comp.Outputs.Sweep(ctx, d.cfg.ScratchMaxAge())
	result.ScratchRemoved = len(sweep.Removed)
	result.ScratchErrors = len(sweep.Errors)
	for _, failure := range sweep.Errors {
		logging.WarnWithContext(d.logger, "scratch file not swept", "lifecycle_fault",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
			logging.String(logging.FieldImpact, "leaked output occupies scratch space"),
		)
	}

	if sweeper, ok := d.comp.Tracker.(progress.Sweeper); ok {
		result.ProgressPruned = sweeper.Sweep()
	}

	if d.comp.Ledger != nil {
		pruned, err := d.comp.Ledger.Prune(ctx, time.Now().Add(-d.cfg.JobRetention()))
		if err != nil {
			d.logger.Warn("job ledger prune failed", logging.Error(err))
		}
		result.JobsPruned = pruned
	}

	if result.ScratchRemoved > 0 || result.ProgressPruned > 0 || result.JobsPruned > 0 {
		d.logger.Info("maintenance pass",
			logging.Int("scratch_removed", result.ScratchRemoved),
			logging.Int("progress_pruned", result.ProgressPruned),
			logging.Int64("jobs_pruned", result.JobsPruned),
		)
	}
	return result
}

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	defer d.wg.Done()
	interval := d.cfg.ScratchSweepInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Maintain(ctx)
		}
	}
}
