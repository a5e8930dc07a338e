package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
)

// ProgressFunc reports a completion fraction for the task being handled.
type ProgressFunc func(ctx context.Context, fraction float64)

// Handler executes one task type. Handle returns the result document to
// store on completion.
type Handler interface {
	TaskType() queue.TaskType
	Handle(ctx context.Context, task *queue.Task, report ProgressFunc) (string, error)
}

// Manager coordinates queue processing using registered handlers.
type Manager struct {
	cfg          *config.Config
	store        queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	handlers     map[queue.TaskType]Handler

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager. Handlers are registered
// separately before Start.
func NewManager(cfg *config.Config, store queue.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "workflow")),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		handlers:     make(map[queue.TaskType]Handler),
	}
}

// Register installs a handler for its task type, replacing any previous
// registration. Must be called before Start.
func (m *Manager) Register(h Handler) {
	if h == nil {
		return
	}
	m.handlers[h.TaskType()] = h
}

// Running reports whether background processing is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent processing error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) workerCount() int {
	if m.cfg.Workflow.Workers > 0 {
		return m.cfg.Workflow.Workers
	}
	return 1
}
