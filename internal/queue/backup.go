package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"murmur/internal/logging"
)

// QueueEntry records one queued task and its scheduling score in a
// snapshot.
type QueueEntry struct {
	TaskID string `json:"task_id"`
	Score  int64  `json:"score"`
}

// Snapshot is the serialized queue state written to the backup file.
// Queue holds the queued tasks in pop order with their scores; Tasks holds
// the full records of everything not yet terminal; Completed holds the
// terminal records.
type Snapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Queue     []QueueEntry `json:"queue"`
	Tasks     []*Task      `json:"tasks"`
	Completed []*Task      `json:"completed"`
	Stats     QueueStats   `json:"stats"`
}

// AllTasks returns every task record in the snapshot, live before terminal.
func (s *Snapshot) AllTasks() []*Task {
	all := make([]*Task, 0, len(s.Tasks)+len(s.Completed))
	all = append(all, s.Tasks...)
	all = append(all, s.Completed...)
	return all
}

// validate rejects snapshots that would restore inconsistent state.
// Recovery is all-or-nothing; any defect fails the whole restore.
func (s *Snapshot) validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	seen := make(map[string]*Task, len(s.Tasks)+len(s.Completed))
	for _, task := range s.AllTasks() {
		if task == nil || task.TaskID == "" {
			return fmt.Errorf("%w: task record without id", ErrCorruptSnapshot)
		}
		if !ValidType(task.TaskType) {
			return fmt.Errorf("%w: task %s has unknown type %q", ErrCorruptSnapshot, task.TaskID, task.TaskType)
		}
		if !ValidStatus(task.Status) {
			return fmt.Errorf("%w: task %s has unknown status %q", ErrCorruptSnapshot, task.TaskID, task.Status)
		}
		if _, dup := seen[task.TaskID]; dup {
			return fmt.Errorf("%w: duplicate task %s", ErrCorruptSnapshot, task.TaskID)
		}
		seen[task.TaskID] = task
	}
	for _, entry := range s.Queue {
		task, ok := seen[entry.TaskID]
		if !ok {
			return fmt.Errorf("%w: queue entry %s has no task record", ErrCorruptSnapshot, entry.TaskID)
		}
		if task.Score() != entry.Score {
			return fmt.Errorf("%w: queue entry %s score mismatch", ErrCorruptSnapshot, entry.TaskID)
		}
	}
	return nil
}

// buildSnapshot assembles a snapshot from the full task list.
func buildSnapshot(tasks []*Task, stats QueueStats) *Snapshot {
	snap := &Snapshot{Timestamp: time.Now().UTC(), Stats: stats}
	var queued []*Task
	for _, task := range tasks {
		if task.Status.IsTerminal() {
			snap.Completed = append(snap.Completed, task)
		} else {
			snap.Tasks = append(snap.Tasks, task)
		}
		if task.Status == StatusQueued {
			queued = append(queued, task)
		}
	}
	// Pop order: higher priority first, oldest first within a priority.
	sort.Slice(queued, func(i, j int) bool {
		a, b := queued[i], queued[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Seq < b.Seq
	})
	for _, task := range queued {
		snap.Queue = append(snap.Queue, QueueEntry{TaskID: task.TaskID, Score: task.Score()})
	}
	return snap
}

// Backup persists queue snapshots and restores them at startup. Saves run
// periodically and on graceful shutdown.
type Backup struct {
	store    Store
	path     string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSave time.Time
}

// NewBackup creates a backup manager writing to path.
func NewBackup(store Store, path string, interval time.Duration, logger *slog.Logger) *Backup {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Backup{
		store:    store,
		path:     path,
		interval: interval,
		logger:   logger.With(logging.String(logging.FieldComponent, "queue-backup")),
	}
}

// LastSave returns when the most recent successful save finished, zero if
// none has happened this run.
func (b *Backup) LastSave() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSave
}

// Save writes a snapshot atomically (temp file + rename).
func (b *Backup) Save(ctx context.Context) error {
	snap, err := b.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("backup snapshot: %w", err)
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("backup encode: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("backup write: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("backup rename: %w", err)
	}

	b.mu.Lock()
	b.lastSave = time.Now().UTC()
	b.mu.Unlock()
	b.logger.Info("queue backup saved",
		logging.Int("queued", len(snap.Queue)),
		logging.Int("tasks", len(snap.Tasks)+len(snap.Completed)))
	return nil
}

// Load restores the snapshot file into the store, if one exists. The file
// is deleted after a successful restore so repeated crashes don't replay
// stale state. A corrupt snapshot restores nothing and is reported; the
// caller starts with an empty queue.
func (b *Backup) Load(ctx context.Context) (bool, error) {
	payload, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backup read: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return false, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if err := b.store.Restore(ctx, &snap); err != nil {
		return false, fmt.Errorf("backup restore: %w", err)
	}
	if err := os.Remove(b.path); err != nil {
		b.logger.Warn("could not remove restored backup file", logging.String("path", b.path), logging.Error(err))
	}
	b.logger.Info("queue backup restored",
		logging.Int("queued", len(snap.Queue)),
		logging.Int("tasks", len(snap.Tasks)+len(snap.Completed)),
		logging.String("saved_at", snap.Timestamp.Format(time.RFC3339)))
	return true, nil
}

// Run saves snapshots at the configured interval until the context ends,
// then takes one final save so shutdown never loses queue state.
func (b *Backup) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := b.Save(shutdownCtx); err != nil {
				b.logger.Error("final queue backup failed", logging.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := b.Save(ctx); err != nil {
				b.logger.Error("periodic queue backup failed", logging.Error(err))
			}
		}
	}
}
