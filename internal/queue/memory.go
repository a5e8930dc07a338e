package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps tasks in process memory. Same semantics as the SQLite
// backend, but everything is lost on exit; used as fallback when the
// database cannot be opened and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	nextSeq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task), nextSeq: 1}
}

// Connected always reports false: the in-memory store is by definition the
// degraded mode.
func (m *MemoryStore) Connected() bool { return false }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Push enqueues a task.
func (m *MemoryStore) Push(_ context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if !ValidType(task.TaskType) {
		return fmt.Errorf("unknown task type %q", task.TaskType)
	}
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.Status = StatusQueued

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.TaskID]; exists {
		return fmt.Errorf("task %s already exists", task.TaskID)
	}
	task.Seq = m.nextSeq
	m.nextSeq++
	m.tasks[task.TaskID] = task.Clone()
	return nil
}

// Pop claims the best queued task.
func (m *MemoryStore) Pop(_ context.Context) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Task
	for _, task := range m.tasks {
		if task.Status != StatusQueued {
			continue
		}
		if best == nil || task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.Seq < best.Seq) {
			best = task
		}
	}
	if best == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	best.Status = StatusProcessing
	best.StartedAt = &now
	return best.Clone(), nil
}

// UpdateStatus transitions a task; terminal tasks are left untouched.
func (m *MemoryStore) UpdateStatus(_ context.Context, taskID string, status Status, update StatusUpdate) (bool, error) {
	if !ValidStatus(status) {
		return false, fmt.Errorf("unknown status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status.IsTerminal() {
		return false, nil
	}
	task.Status = status
	if status.IsTerminal() {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	if status == StatusCompleted {
		task.Progress = 1
	}
	if update.Progress != nil {
		task.Progress = *update.Progress
	}
	if update.Result != nil {
		task.Result = *update.Result
	}
	if update.ErrorMessage != nil {
		task.ErrorMessage = *update.ErrorMessage
	}
	return true, nil
}

// GetTask returns a copy of the task, or nil when unknown.
func (m *MemoryStore) GetTask(_ context.Context, taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[taskID].Clone(), nil
}

// ListTasks returns tasks matching the filter, newest first.
func (m *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*Task
	for _, task := range m.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && task.TaskType != filter.Type {
			continue
		}
		tasks = append(tasks, task.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Seq > tasks[j].Seq })
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// CancelQueued cancels a task only while it is still queued.
func (m *MemoryStore) CancelQueued(_ context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status != StatusQueued {
		return false, nil
	}
	now := time.Now().UTC()
	task.Status = StatusCancelled
	task.CompletedAt = &now
	return true, nil
}

// Requeue returns a processing task to queued for another attempt.
func (m *MemoryStore) Requeue(_ context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status != StatusProcessing {
		return false, nil
	}
	task.Status = StatusQueued
	task.StartedAt = nil
	task.Progress = 0
	task.RetryCount++
	return true, nil
}

// ReclaimStuck fails processing tasks claimed before the cutoff.
func (m *MemoryStore) ReclaimStuck(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reclaimed int64
	now := time.Now().UTC()
	for _, task := range m.tasks {
		if task.Status != StatusProcessing || task.StartedAt == nil {
			continue
		}
		if task.StartedAt.Before(cutoff) {
			task.Status = StatusFailed
			task.ErrorMessage = StuckTaskMessage
			task.CompletedAt = &now
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Stats counts tasks per status.
func (m *MemoryStore) Stats(_ context.Context) (QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := QueueStats{}
	for _, task := range m.tasks {
		stats.TotalTasks++
		switch task.Status {
		case StatusQueued:
			stats.QueuedTasks++
		case StatusProcessing:
			stats.ProcessingTasks++
		case StatusCompleted:
			stats.CompletedTasks++
		case StatusFailed:
			stats.FailedTasks++
		case StatusCancelled:
			stats.CancelledTasks++
		}
	}
	return stats, nil
}

// Snapshot captures the full store state for backup.
func (m *MemoryStore) Snapshot(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task.Clone())
	}
	m.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Seq < tasks[j].Seq })

	stats, _ := m.Stats(context.Background())
	return buildSnapshot(tasks, stats), nil
}

// Restore replaces store contents with the snapshot.
func (m *MemoryStore) Restore(_ context.Context, snap *Snapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = make(map[string]*Task)
	maxSeq := int64(0)
	for _, task := range snap.AllTasks() {
		m.tasks[task.TaskID] = task.Clone()
		if task.Seq > maxSeq {
			maxSeq = task.Seq
		}
	}
	m.nextSeq = maxSeq + 1
	return nil
}
