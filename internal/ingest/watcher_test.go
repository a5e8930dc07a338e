package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/ingest"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/testsupport"
)

func newTestWatcher(t *testing.T) (*ingest.Watcher, queue.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryQueue())
	cfg.Ingest.Enabled = true
	cfg.Ingest.Priority = 2
	store := queue.NewMemoryStore()
	watcher := ingest.NewWatcher(cfg, store, logging.NewNop())
	watcher.WithSettleDelay(10 * time.Millisecond)
	return watcher, store, cfg.Paths.InboxDir
}

func waitForTasks(t *testing.T, store queue.Store, want int) []*queue.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tasks, err := store.ListTasks(context.Background(), queue.TaskFilter{})
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		if len(tasks) >= want {
			return tasks
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never saw %d enqueued tasks", want)
	return nil
}

func TestWatcherEnqueuesNewAudioFiles(t *testing.T) {
	watcher, store, inbox := newTestWatcher(t)
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	path := filepath.Join(inbox, "interview: part 1.mp3")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tasks := waitForTasks(t, store, 1)
	task := tasks[0]
	if task.TaskType != queue.TypeTranscription {
		t.Fatalf("unexpected task type %s", task.TaskType)
	}
	if task.FilePath != path {
		t.Fatalf("unexpected file path %q", task.FilePath)
	}
	if task.FileName != "interview- part 1.mp3" {
		t.Fatalf("file name not sanitized, got %q", task.FileName)
	}
	if task.Priority != 2 {
		t.Fatalf("expected ingest priority 2, got %d", task.Priority)
	}
}

func TestWatcherEnqueuesFilesPresentAtStartup(t *testing.T) {
	watcher, store, inbox := newTestWatcher(t)

	path := filepath.Join(inbox, "backlog.wav")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	tasks := waitForTasks(t, store, 1)
	if tasks[0].FilePath != path {
		t.Fatalf("unexpected file path %q", tasks[0].FilePath)
	}
}

func TestWatcherIgnoresUnsupportedAndTemporaryFiles(t *testing.T) {
	watcher, store, inbox := newTestWatcher(t)
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	for _, name := range []string{"notes.txt", "upload.mp3.tmp", ".hidden.mp3"} {
		if err := os.WriteFile(filepath.Join(inbox, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	path := filepath.Join(inbox, "real.flac")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tasks := waitForTasks(t, store, 1)
	if len(tasks) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(tasks))
	}
	if tasks[0].FilePath != path {
		t.Fatalf("unexpected file path %q", tasks[0].FilePath)
	}
}

func TestWatcherSettlesCandidatesConcurrently(t *testing.T) {
	watcher, store, inbox := newTestWatcher(t)
	watcher.WithSettleDelay(150 * time.Millisecond)

	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3"} {
		if err := os.WriteFile(filepath.Join(inbox, name), []byte("audio-bytes"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	start := time.Now()
	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	waitForTasks(t, store, 4)
	// Settling one after another would take at least 1.2s here.
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("candidates settled serially, took %v", elapsed)
	}
}

func TestWatcherDoesNotEnqueueTwice(t *testing.T) {
	watcher, store, inbox := newTestWatcher(t)

	path := filepath.Join(inbox, "once.mp3")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	waitForTasks(t, store, 1)
	time.Sleep(100 * time.Millisecond)

	tasks, err := store.ListTasks(context.Background(), queue.TaskFilter{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(tasks))
	}
}
