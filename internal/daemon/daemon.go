package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/ingest"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/workflow"
)

// Daemon coordinates the background services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    queue.Store
	workflow *workflow.Manager
	backup   *queue.Backup
	ingest   *ingest.Watcher
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	startedAt time.Time
	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs a daemon with initialized dependencies. The ingest
// watcher may be nil when the inbox is disabled.
func New(cfg *config.Config, store queue.Store, logger *slog.Logger, wf *workflow.Manager, watcher *ingest.Watcher) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "murmurd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		ingest:   watcher,
		backup: queue.NewBackup(
			store,
			cfg.BackupPath(),
			time.Duration(cfg.Queue.BackupInterval)*time.Second,
			logger,
		),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock, restores any queue snapshot, and
// launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmur daemon instance is already running")
	}

	restored, err := d.backup.Load(ctx)
	if err != nil {
		d.logger.Warn("queue snapshot not restored", logging.Error(err))
	} else if restored {
		d.logger.Info("queue restored from snapshot", logging.String("path", d.cfg.BackupPath()))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		d.releaseStart(cancel)
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.ingest != nil {
		if err := d.ingest.Start(runCtx); err != nil {
			d.workflow.Stop()
			d.releaseStart(cancel)
			return fmt.Errorf("start ingest: %w", err)
		}
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			if d.ingest != nil {
				d.ingest.Stop()
			}
			d.workflow.Stop()
			d.releaseStart(cancel)
			return err
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.backup.Run(runCtx)
	}()

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("murmur daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseStart(cancel context.CancelFunc) {
	cancel()
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock. The
// backup loop writes a final snapshot before exit.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.ingest != nil {
		d.ingest.Stop()
	}
	d.workflow.Stop()
	if d.api != nil {
		d.api.stop()
	}
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if !d.running.Load() {
		return 0
	}
	return time.Since(d.startedAt)
}

// APIAddr returns the bound API listen address, empty before Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Stats returns queue counters enriched with runtime information.
func (d *Daemon) Stats(ctx context.Context) (queue.QueueStats, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return queue.QueueStats{}, err
	}
	stats.UptimeSeconds = d.Uptime().Seconds()
	if last := d.backup.LastSave(); !last.IsZero() {
		utc := last.UTC()
		stats.LastBackup = &utc
	}
	return stats, nil
}

// SaveBackup writes a queue snapshot immediately.
func (d *Daemon) SaveBackup(ctx context.Context) error {
	return d.backup.Save(ctx)
}

// LastBackup reports when the queue was last snapshotted.
func (d *Daemon) LastBackup() time.Time {
	return d.backup.LastSave()
}

// ReclaimStuck fails tasks stuck in processing past the configured
// limit.
func (d *Daemon) ReclaimStuck(ctx context.Context) int64 {
	return d.workflow.ReclaimStuck(ctx)
}
