package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"murmur/internal/queue"
	"murmur/internal/testsupport"
)

// both backends must satisfy identical semantics; every test here runs
// against each.
func forEachBackend(t *testing.T, test func(t *testing.T, store queue.Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		test(t, testsupport.MustOpenStore(t, cfg))
	})
	t.Run("memory", func(t *testing.T) {
		test(t, queue.NewMemoryStore())
	})
}

func newTranscriptionTask(priority int) *queue.Task {
	return &queue.Task{
		TaskType:   queue.TypeTranscription,
		Priority:   priority,
		MaxRetries: 3,
		FilePath:   "/tmp/audio.mp3",
		FileName:   "audio.mp3",
		Language:   "th",
	}
}

func TestPushAssignsIdentityAndSeq(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		first := newTranscriptionTask(0)
		second := newTranscriptionTask(0)
		if err := store.Push(ctx, first); err != nil {
			t.Fatalf("push: %v", err)
		}
		if err := store.Push(ctx, second); err != nil {
			t.Fatalf("push: %v", err)
		}
		if first.TaskID == "" || second.TaskID == "" {
			t.Fatal("expected task ids to be assigned")
		}
		if second.Seq <= first.Seq {
			t.Fatalf("seq must increase: %d then %d", first.Seq, second.Seq)
		}

		fetched, err := store.GetTask(ctx, first.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if fetched == nil || fetched.Status != queue.StatusQueued {
			t.Fatalf("unexpected fetched task: %+v", fetched)
		}
	})
}

func TestPopOrdersByPriorityThenSubmission(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		var ids []string
		for _, priority := range []int{1, 5, 1, 3} {
			task := newTranscriptionTask(priority)
			if err := store.Push(ctx, task); err != nil {
				t.Fatalf("push: %v", err)
			}
			ids = append(ids, task.TaskID)
		}

		want := []string{ids[1], ids[3], ids[0], ids[2]}
		for i, expected := range want {
			task, err := store.Pop(ctx)
			if err != nil {
				t.Fatalf("pop %d: %v", i, err)
			}
			if task == nil {
				t.Fatalf("pop %d: queue unexpectedly empty", i)
			}
			if task.TaskID != expected {
				t.Fatalf("pop %d: got %s, want %s", i, task.TaskID, expected)
			}
			if task.Status != queue.StatusProcessing {
				t.Fatalf("pop %d: expected processing, got %s", i, task.Status)
			}
			if task.StartedAt == nil {
				t.Fatalf("pop %d: started_at not stamped", i)
			}
		}

		empty, err := store.Pop(ctx)
		if err != nil {
			t.Fatalf("pop on empty queue: %v", err)
		}
		if empty != nil {
			t.Fatalf("expected nil on empty queue, got %+v", empty)
		}
	})
}

func TestPopClaimsEachTaskOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		const total = 20
		for i := 0; i < total; i++ {
			if err := store.Push(ctx, newTranscriptionTask(i%3)); err != nil {
				t.Fatalf("push: %v", err)
			}
		}

		claimed := make(chan string, total)
		done := make(chan struct{})
		for w := 0; w < 4; w++ {
			go func() {
				for {
					task, err := store.Pop(ctx)
					if err != nil {
						t.Errorf("pop: %v", err)
						return
					}
					if task == nil {
						done <- struct{}{}
						return
					}
					claimed <- task.TaskID
				}
			}()
		}
		for w := 0; w < 4; w++ {
			<-done
		}
		close(claimed)

		seen := make(map[string]bool)
		for id := range claimed {
			if seen[id] {
				t.Fatalf("task %s claimed twice", id)
			}
			seen[id] = true
		}
		if len(seen) != total {
			t.Fatalf("expected %d claimed tasks, got %d", total, len(seen))
		}
	})
}

func TestUpdateStatusAppliesFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		task := newTranscriptionTask(0)
		if err := store.Push(ctx, task); err != nil {
			t.Fatalf("push: %v", err)
		}
		if _, err := store.Pop(ctx); err != nil {
			t.Fatalf("pop: %v", err)
		}

		progress := 0.3
		ok, err := store.UpdateStatus(ctx, task.TaskID, queue.StatusProcessing, queue.StatusUpdate{Progress: &progress})
		if err != nil || !ok {
			t.Fatalf("progress update failed: ok=%v err=%v", ok, err)
		}

		result := `{"text":"done"}`
		ok, err = store.UpdateStatus(ctx, task.TaskID, queue.StatusCompleted, queue.StatusUpdate{Result: &result})
		if err != nil || !ok {
			t.Fatalf("completion update failed: ok=%v err=%v", ok, err)
		}

		fetched, err := store.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if fetched.Status != queue.StatusCompleted || fetched.Result != result {
			t.Fatalf("unexpected task after completion: %+v", fetched)
		}
		if fetched.Progress != 1 {
			t.Fatalf("completion should set progress to 1, got %v", fetched.Progress)
		}
		if fetched.CompletedAt == nil {
			t.Fatal("completed_at not stamped")
		}
	})
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		task := newTranscriptionTask(0)
		if err := store.Push(ctx, task); err != nil {
			t.Fatalf("push: %v", err)
		}
		if _, err := store.Pop(ctx); err != nil {
			t.Fatalf("pop: %v", err)
		}

		result := `{"text":"original"}`
		if ok, err := store.UpdateStatus(ctx, task.TaskID, queue.StatusCompleted, queue.StatusUpdate{Result: &result}); err != nil || !ok {
			t.Fatalf("completion failed: ok=%v err=%v", ok, err)
		}

		overwrite := `{"text":"overwritten"}`
		ok, err := store.UpdateStatus(ctx, task.TaskID, queue.StatusFailed, queue.StatusUpdate{Result: &overwrite})
		if err != nil {
			t.Fatalf("update on terminal task errored: %v", err)
		}
		if ok {
			t.Fatal("update on terminal task must be rejected")
		}

		fetched, err := store.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if fetched.Status != queue.StatusCompleted || fetched.Result != result {
			t.Fatalf("terminal task was mutated: %+v", fetched)
		}
	})
}

func TestCancelOnlyWhileQueued(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		queued := newTranscriptionTask(0)
		claimed := newTranscriptionTask(5)
		if err := store.Push(ctx, queued); err != nil {
			t.Fatalf("push: %v", err)
		}
		if err := store.Push(ctx, claimed); err != nil {
			t.Fatalf("push: %v", err)
		}
		if _, err := store.Pop(ctx); err != nil {
			t.Fatalf("pop: %v", err)
		}

		if ok, err := store.CancelQueued(ctx, queued.TaskID); err != nil || !ok {
			t.Fatalf("expected queued task to cancel: ok=%v err=%v", ok, err)
		}
		if ok, err := store.CancelQueued(ctx, claimed.TaskID); err != nil || ok {
			t.Fatalf("processing task must not cancel: ok=%v err=%v", ok, err)
		}
	})
}

func TestRequeueIncrementsRetryCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		task := newTranscriptionTask(2)
		if err := store.Push(ctx, task); err != nil {
			t.Fatalf("push: %v", err)
		}
		if _, err := store.Pop(ctx); err != nil {
			t.Fatalf("pop: %v", err)
		}

		ok, err := store.Requeue(ctx, task.TaskID)
		if err != nil || !ok {
			t.Fatalf("requeue failed: ok=%v err=%v", ok, err)
		}

		fetched, err := store.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if fetched.Status != queue.StatusQueued || fetched.RetryCount != 1 {
			t.Fatalf("unexpected task after requeue: %+v", fetched)
		}
		if fetched.StartedAt != nil {
			t.Fatal("requeue must clear started_at")
		}
		if fetched.Seq != task.Seq {
			t.Fatalf("requeue must keep seq %d, got %d", task.Seq, fetched.Seq)
		}
	})
}

func TestReclaimStuckFailsLongRunningTasks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		stuck := newTranscriptionTask(0)
		fresh := newTranscriptionTask(0)
		if err := store.Push(ctx, stuck); err != nil {
			t.Fatalf("push: %v", err)
		}
		if _, err := store.Pop(ctx); err != nil {
			t.Fatalf("pop: %v", err)
		}

		// Claimed just now; a cutoff in the future marks it stuck, while
		// the still-queued task is untouched.
		reclaimed, err := store.ReclaimStuck(ctx, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("reclaim: %v", err)
		}
		if reclaimed != 1 {
			t.Fatalf("expected 1 reclaimed task, got %d", reclaimed)
		}

		fetched, err := store.GetTask(ctx, stuck.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if fetched.Status != queue.StatusFailed {
			t.Fatalf("expected failed, got %s", fetched.Status)
		}
		if fetched.ErrorMessage != queue.StuckTaskMessage {
			t.Fatalf("unexpected error message: %q", fetched.ErrorMessage)
		}

		if err := store.Push(ctx, fresh); err != nil {
			t.Fatalf("push: %v", err)
		}
		reclaimed, err = store.ReclaimStuck(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("reclaim: %v", err)
		}
		if reclaimed != 0 {
			t.Fatalf("queued tasks must not be reclaimed, got %d", reclaimed)
		}
	})
}

func TestStatsCountsByStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			if err := store.Push(ctx, newTranscriptionTask(i)); err != nil {
				t.Fatalf("push: %v", err)
			}
		}
		popped, err := store.Pop(ctx)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if _, err := store.UpdateStatus(ctx, popped.TaskID, queue.StatusCompleted, queue.StatusUpdate{}); err != nil {
			t.Fatalf("complete: %v", err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.TotalTasks != 3 || stats.QueuedTasks != 2 || stats.CompletedTasks != 1 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
	})
}

func TestListTasksFilters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			if err := store.Push(ctx, newTranscriptionTask(i)); err != nil {
				t.Fatalf("push: %v", err)
			}
		}
		risk := &queue.Task{
			TaskType:        queue.TypeRiskDetection,
			TranscriptionID: "tr-1",
			Text:            "ข้อความ",
		}
		if err := store.Push(ctx, risk); err != nil {
			t.Fatalf("push risk: %v", err)
		}

		all, err := store.ListTasks(ctx, queue.TaskFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 tasks, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].Seq > all[i-1].Seq {
				t.Fatal("list must be newest first")
			}
		}

		risks, err := store.ListTasks(ctx, queue.TaskFilter{Type: queue.TypeRiskDetection})
		if err != nil {
			t.Fatalf("list risk: %v", err)
		}
		if len(risks) != 1 || risks[0].TaskID != risk.TaskID {
			t.Fatalf("unexpected risk listing: %+v", risks)
		}

		limited, err := store.ListTasks(ctx, queue.TaskFilter{Status: queue.StatusQueued, Limit: 2})
		if err != nil {
			t.Fatalf("list limited: %v", err)
		}
		if len(limited) != 2 {
			t.Fatalf("expected 2 tasks with limit, got %d", len(limited))
		}
	})
}

func TestPushRejectsUnknownType(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		err := store.Push(context.Background(), &queue.Task{TaskType: "mystery"})
		if err == nil {
			t.Fatal("expected error for unknown task type")
		}
	})
}

func TestStoredFieldsRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		ctx := context.Background()
		task := &queue.Task{
			TaskType:   queue.TypeTranscription,
			Priority:   7,
			MaxRetries: 5,
			FilePath:   "/data/inbox/call.m4a",
			FileName:   "call.m4a",
			Language:   "th",
		}
		if err := store.Push(ctx, task); err != nil {
			t.Fatalf("push: %v", err)
		}

		fetched, err := store.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if fetched.FilePath != task.FilePath || fetched.FileName != task.FileName ||
			fetched.Language != task.Language || fetched.Priority != 7 || fetched.MaxRetries != 5 {
			t.Fatalf("fields did not round trip: %+v", fetched)
		}
		if fetched.CreatedAt.IsZero() {
			t.Fatal("created_at not persisted")
		}
	})
}

func TestGetUnknownTaskReturnsNil(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store queue.Store) {
		task, err := store.GetTask(context.Background(), fmt.Sprintf("no-such-%d", time.Now().UnixNano()))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if task != nil {
			t.Fatalf("expected nil for unknown id, got %+v", task)
		}
	})
}
