package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/queue"
	"murmur/internal/testsupport"
)

func popAllIDs(t *testing.T, store queue.Store) []string {
	t.Helper()
	var ids []string
	for {
		task, err := store.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if task == nil {
			return ids
		}
		ids = append(ids, task.TaskID)
	}
}

func TestBackupRoundTripPreservesPopOrder(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	source := testsupport.MustOpenStore(t, cfg)

	for _, priority := range []int{2, 9, 2, 5, 9} {
		if err := source.Push(ctx, newTranscriptionTask(priority)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	backupPath := filepath.Join(t.TempDir(), "queue_backup.json")
	backup := queue.NewBackup(source, backupPath, time.Minute, nil)
	if err := backup.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if backup.LastSave().IsZero() {
		t.Fatal("last save not recorded")
	}

	// The order the original store would have served.
	want := popAllIDs(t, source)

	restored := queue.NewMemoryStore()
	loaded, err := queue.NewBackup(restored, backupPath, time.Minute, nil).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded {
		t.Fatal("expected snapshot to be restored")
	}

	got := popAllIDs(t, restored)
	if len(got) != len(want) {
		t.Fatalf("restored %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order diverged at %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := os.Stat(backupPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("backup file must be deleted after successful restore")
	}
}

func TestSnapshotQueueListsTasksInPopOrder(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemoryStore()

	tasks := make([]*queue.Task, 0, 4)
	for _, priority := range []int{5, 5, 9, 5} {
		task := newTranscriptionTask(priority)
		if err := store.Push(ctx, task); err != nil {
			t.Fatalf("push: %v", err)
		}
		tasks = append(tasks, task)
	}

	backupPath := filepath.Join(t.TempDir(), "queue_backup.json")
	if err := queue.NewBackup(store, backupPath, time.Minute, nil).Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap queue.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	// Priority 9 first, then the equal-priority tasks oldest first.
	want := []string{tasks[2].TaskID, tasks[0].TaskID, tasks[1].TaskID, tasks[3].TaskID}
	if len(snap.Queue) != len(want) {
		t.Fatalf("snapshot queue has %d entries, want %d", len(snap.Queue), len(want))
	}
	for i, entry := range snap.Queue {
		if entry.TaskID != want[i] {
			t.Fatalf("queue[%d] = %s, want %s", i, entry.TaskID, want[i])
		}
	}
}

func TestBackupKeepsTerminalRecords(t *testing.T) {
	ctx := context.Background()
	source := queue.NewMemoryStore()

	done := newTranscriptionTask(1)
	if err := source.Push(ctx, done); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := source.Pop(ctx); err != nil {
		t.Fatalf("pop: %v", err)
	}
	result := `{"text":"จบแล้ว"}`
	if _, err := source.UpdateStatus(ctx, done.TaskID, queue.StatusCompleted, queue.StatusUpdate{Result: &result}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	backupPath := filepath.Join(t.TempDir(), "queue_backup.json")
	if err := queue.NewBackup(source, backupPath, time.Minute, nil).Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := queue.NewMemoryStore()
	if _, err := queue.NewBackup(restored, backupPath, time.Minute, nil).Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	fetched, err := restored.GetTask(ctx, done.TaskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched == nil || fetched.Status != queue.StatusCompleted || fetched.Result != result {
		t.Fatalf("completed record not restored: %+v", fetched)
	}
}

func TestLoadWithoutBackupFile(t *testing.T) {
	store := queue.NewMemoryStore()
	backup := queue.NewBackup(store, filepath.Join(t.TempDir(), "absent.json"), time.Minute, nil)
	loaded, err := backup.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded {
		t.Fatal("nothing should load when no backup exists")
	}
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue_backup.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := queue.NewMemoryStore()
	if err := store.Push(context.Background(), newTranscriptionTask(1)); err != nil {
		t.Fatalf("push: %v", err)
	}

	backup := queue.NewBackup(store, path, time.Minute, nil)
	_, err := backup.Load(context.Background())
	if !errors.Is(err, queue.ErrCorruptSnapshot) {
		t.Fatalf("expected corrupt snapshot error, got %v", err)
	}

	// The store must be untouched: all-or-nothing restore.
	stats, statsErr := store.Stats(context.Background())
	if statsErr != nil {
		t.Fatalf("stats: %v", statsErr)
	}
	if stats.TotalTasks != 1 {
		t.Fatalf("corrupt restore must not alter the store, have %d tasks", stats.TotalTasks)
	}

	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatal("corrupt backup file must be kept for inspection")
	}
}

func TestRestoreRejectsInconsistentSnapshot(t *testing.T) {
	snap := &queue.Snapshot{
		Timestamp: time.Now().UTC(),
		Queue:     []queue.QueueEntry{{TaskID: "ghost", Score: 42}},
	}
	store := queue.NewMemoryStore()
	err := store.Restore(context.Background(), snap)
	if !errors.Is(err, queue.ErrCorruptSnapshot) {
		t.Fatalf("expected corrupt snapshot error for dangling queue entry, got %v", err)
	}
}
