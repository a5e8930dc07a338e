package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/services"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.workerCount()
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i+1)
	}
	go m.runMaintenance(runCtx)

	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := m.store.Pop(ctx)
		if err != nil {
			m.handlePopError(ctx, logger, err)
			continue
		}
		if task == nil {
			m.waitForTaskOrShutdown(ctx)
			continue
		}

		m.processTask(ctx, logger, task)
	}
}

func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.Workflow.MaintenanceInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReclaimStuck(ctx)
		}
	}
}

// ReclaimStuck fails processing tasks that exceeded the configured
// processing time. Returns the number of tasks reclaimed.
func (m *Manager) ReclaimStuck(ctx context.Context) int64 {
	cutoff := time.Now().Add(-time.Duration(m.cfg.Queue.MaxProcessingSeconds) * time.Second)
	reclaimed, err := m.store.ReclaimStuck(ctx, cutoff)
	if err != nil {
		m.logger.Warn("stuck task sweep failed; stuck tasks may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stuck_sweep_failed"),
			logging.String(logging.FieldErrorHint, "check queue storage access"),
		)
		return 0
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed stuck tasks", logging.Int64("count", reclaimed))
	}
	return reclaimed
}

func (m *Manager) handlePopError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to pop next task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_pop_failed"),
		logging.String(logging.FieldErrorHint, "check queue storage access"),
	)
	retry := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second
	if retry <= 0 {
		retry = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(retry):
	}
}

func (m *Manager) waitForTaskOrShutdown(ctx context.Context) {
	poll := m.pollInterval
	if poll <= 0 {
		poll = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(poll):
	}
}

func (m *Manager) processTask(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	logger = logger.With(
		logging.String(logging.FieldTaskID, task.TaskID),
		logging.String(logging.FieldTaskType, string(task.TaskType)),
	)

	handler, ok := m.handlers[task.TaskType]
	if !ok {
		logger.Error("no handler registered for task type")
		m.failTask(ctx, logger, task, "no handler registered for task type "+string(task.TaskType))
		return
	}

	logger.Info("task started",
		logging.Int("priority", task.Priority),
		logging.Int("attempt", task.RetryCount+1),
	)
	started := time.Now()

	report := func(ctx context.Context, fraction float64) {
		update := queue.StatusUpdate{Progress: &fraction}
		if _, err := m.store.UpdateStatus(ctx, task.TaskID, queue.StatusProcessing, update); err != nil {
			logger.Warn("progress update failed", logging.Error(err))
		}
	}

	result, err := handler.Handle(ctx, task, report)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("task interrupted by shutdown")
			return
		}
		m.setLastError(err)
		m.handleTaskFailure(ctx, logger, task, err)
		return
	}

	update := queue.StatusUpdate{Result: &result}
	if _, err := m.store.UpdateStatus(ctx, task.TaskID, queue.StatusCompleted, update); err != nil {
		logger.Error("failed to record task completion", logging.Error(err))
		return
	}
	m.cleanupInput(logger, task)
	logger.Info("task completed", logging.Duration("elapsed", time.Since(started)))
}

func (m *Manager) handleTaskFailure(ctx context.Context, logger *slog.Logger, task *queue.Task, taskErr error) {
	retryable := services.IsRetryable(taskErr)
	if retryable && task.RetryCount < maxRetries(task, m.cfg.Queue.MaxRetries) {
		requeued, err := m.store.Requeue(ctx, task.TaskID)
		if err != nil {
			logger.Error("failed to requeue task", logging.Error(err))
		}
		if requeued {
			logger.Warn("task failed, requeued for retry",
				logging.Error(taskErr),
				logging.Int("attempt", task.RetryCount+1),
			)
			return
		}
	}
	logger.Error("task failed",
		logging.Error(taskErr),
		logging.Bool("retryable", retryable),
	)
	m.failTask(ctx, logger, task, taskErr.Error())
}

func (m *Manager) failTask(ctx context.Context, logger *slog.Logger, task *queue.Task, message string) {
	update := queue.StatusUpdate{ErrorMessage: &message}
	if _, err := m.store.UpdateStatus(ctx, task.TaskID, queue.StatusFailed, update); err != nil {
		logger.Error("failed to record task failure", logging.Error(err))
	}
}

// cleanupInput removes the source file of a completed transcription task
// when it came through the inbox. Files outside the inbox belong to the
// submitter and are left alone.
func (m *Manager) cleanupInput(logger *slog.Logger, task *queue.Task) {
	if task.TaskType != queue.TypeTranscription || task.FilePath == "" {
		return
	}
	inbox := strings.TrimSpace(m.cfg.Paths.InboxDir)
	if inbox == "" {
		return
	}
	if filepath.Dir(task.FilePath) != filepath.Clean(inbox) {
		return
	}
	if err := os.Remove(task.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove processed inbox file",
			logging.String("path", task.FilePath), logging.Error(err))
	}
}

func maxRetries(task *queue.Task, configured int) int {
	if task.MaxRetries > 0 {
		return task.MaxRetries
	}
	return configured
}
