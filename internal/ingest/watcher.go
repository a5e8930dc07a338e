package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/textutil"
	"murmur/internal/transcribe"
)

// Watcher enqueues a transcription task for every supported audio file
// that appears in the inbox directory. Files already present at startup
// are enqueued as well.
type Watcher struct {
	cfg    *config.Config
	store  queue.Store
	logger *slog.Logger

	// settleDelay is how long a file's size must stay unchanged before
	// it counts as fully written.
	settleDelay time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	seen    map[string]bool
}

// NewWatcher constructs an inbox watcher.
func NewWatcher(cfg *config.Config, store queue.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:         cfg,
		store:       store,
		logger:      logger.With(logging.String(logging.FieldComponent, "ingest")),
		settleDelay: 500 * time.Millisecond,
		seen:        make(map[string]bool),
	}
}

// WithSettleDelay overrides the write-settle delay, used in tests.
func (w *Watcher) WithSettleDelay(d time.Duration) {
	if d > 0 {
		w.settleDelay = d
	}
}

// Start begins watching the inbox directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("ingest watcher already running")
	}

	inbox := strings.TrimSpace(w.cfg.Paths.InboxDir)
	if inbox == "" {
		w.mu.Unlock()
		return errors.New("inbox directory not configured")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := fsWatcher.Add(inbox); err != nil {
		fsWatcher.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch inbox %q: %w", inbox, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run(runCtx, fsWatcher, inbox)

	w.logger.Info("watching inbox", logging.String("path", inbox))
	return nil
}

// Stop terminates watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context, fsWatcher *fsnotify.Watcher, inbox string) {
	defer w.wg.Done()
	defer fsWatcher.Close()

	w.scanExisting(ctx, inbox)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			w.handleCandidate(ctx, event.Name)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("inbox watcher error", logging.Error(err))
		}
	}
}

// scanExisting enqueues files that were dropped while the daemon was
// not running.
func (w *Watcher) scanExisting(ctx context.Context, inbox string) {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		w.logger.Error("failed to scan inbox", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleCandidate(ctx, filepath.Join(inbox, entry.Name()))
	}
}

func (w *Watcher) handleCandidate(ctx context.Context, path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}
	if !transcribe.SupportedExtension(path) {
		return
	}

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	// Settle off the event loop so one slow upload does not delay the
	// rest of the inbox.
	w.wg.Add(1)
	go w.settleAndEnqueue(ctx, path, name)
}

func (w *Watcher) settleAndEnqueue(ctx context.Context, path, name string) {
	defer w.wg.Done()

	if !w.waitUntilStable(ctx, path) {
		return
	}

	task := &queue.Task{
		TaskType: queue.TypeTranscription,
		FilePath: path,
		FileName: textutil.SanitizeFileName(name),
		Priority: w.cfg.Ingest.Priority,
	}
	if err := w.store.Push(ctx, task); err != nil {
		w.logger.Error("failed to enqueue inbox file",
			logging.String("path", path), logging.Error(err))
		w.mu.Lock()
		delete(w.seen, path)
		w.mu.Unlock()
		return
	}
	w.logger.Info("enqueued inbox file",
		logging.String(logging.FieldTaskID, task.TaskID),
		logging.String("file", name),
	)
}

// waitUntilStable blocks until the file size stops changing, so partial
// uploads are not enqueued mid-copy.
func (w *Watcher) waitUntilStable(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for attempt := 0; attempt < 60; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.settleDelay):
		}

		info, err := os.Stat(path)
		if err != nil {
			// Removed or renamed away before it settled.
			return false
		}
		if info.Size() > 0 && info.Size() == lastSize {
			return true
		}
		lastSize = info.Size()
	}
	w.logger.Warn("inbox file never settled, skipping", logging.String("path", path))
	return false
}
