package queue

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
)

// Store is the task storage contract shared by the SQLite and in-memory
// backends. Callers never know which backend is active; Connected
// distinguishes them for health reporting.
type Store interface {
	// Push enqueues a task. The store assigns Seq and stamps CreatedAt
	// if unset.
	Push(ctx context.Context, task *Task) error

	// Pop atomically claims the best queued task (priority desc, seq asc)
	// and transitions it to processing with StartedAt stamped. Returns
	// nil when the queue is empty.
	Pop(ctx context.Context) (*Task, error)

	// UpdateStatus transitions a task, applying any optional fields.
	// Returns false without changes when the task does not exist or is
	// already terminal.
	UpdateStatus(ctx context.Context, taskID string, status Status, update StatusUpdate) (bool, error)

	// GetTask returns a task by id, or nil when unknown.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// ListTasks returns tasks matching the filter, newest first.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)

	// CancelQueued cancels a task only while it is still queued.
	CancelQueued(ctx context.Context, taskID string) (bool, error)

	// Requeue returns a processing task to the queue for another attempt,
	// incrementing RetryCount and clearing StartedAt. The original Seq is
	// kept so submission order still breaks priority ties.
	Requeue(ctx context.Context, taskID string) (bool, error)

	// ReclaimStuck fails processing tasks whose StartedAt is older than
	// the cutoff, setting StuckTaskMessage. Returns the number reclaimed.
	ReclaimStuck(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats counts tasks per status.
	Stats(ctx context.Context) (QueueStats, error)

	// Snapshot captures queue ordering and task records for backup.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Restore replaces store contents with a snapshot, preserving pop
	// ordering exactly. All-or-nothing.
	Restore(ctx context.Context, snap *Snapshot) error

	// Connected reports whether the durable backend is in use and healthy.
	Connected() bool

	Close() error
}

// TaskFilter narrows ListTasks output. Zero values match everything.
type TaskFilter struct {
	Status Status
	Type   TaskType
	Limit  int
}

// DatabaseFileName is the queue database file, created under the log dir.
const DatabaseFileName = "queue.db"

// Open connects the configured backend. With fallback enabled, a SQLite
// failure degrades to the in-memory store instead of returning an error;
// the degradation is visible through Connected and the stats health flag.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Queue.Backend == config.QueueBackendMemory {
		return NewMemoryStore(), nil
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, DatabaseFileName)
	store, err := OpenSQLite(dbPath)
	if err != nil {
		if !cfg.Queue.FallbackToMemory {
			return nil, err
		}
		logger.Warn("queue database unavailable, falling back to in-memory store",
			logging.String("path", dbPath), logging.Error(err))
		return NewMemoryStore(), nil
	}
	return store, nil
}
