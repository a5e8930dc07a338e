package daemon_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/testsupport"
	"murmur/internal/workflow"
)

type stubHandler struct {
	taskType queue.TaskType
	result   string
	// block, when non-nil, holds the handler until closed.
	block chan struct{}
}

func (h *stubHandler) TaskType() queue.TaskType { return h.taskType }

func (h *stubHandler) Handle(ctx context.Context, task *queue.Task, report workflow.ProgressFunc) (string, error) {
	report(ctx, 0.5)
	if h.block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-h.block:
		}
	}
	return h.result, nil
}

func newTestDaemon(t *testing.T, handlers ...workflow.Handler) (*api.Client, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMemoryQueue())
	cfg.Workflow.Workers = 1
	store := queue.NewMemoryStore()

	mgr := workflow.NewManager(cfg, store, logging.NewNop())
	if len(handlers) == 0 {
		handlers = []workflow.Handler{&stubHandler{taskType: queue.TypeTranscription, result: `{"text":"ok"}`}}
	}
	for _, h := range handlers {
		mgr.Register(h)
	}

	d, err := daemon.New(cfg, store, logging.NewNop(), mgr, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	client, err := api.NewClient(d.APIAddr())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, cfg
}

func waitForClientStatus(t *testing.T, client *api.Client, taskID string, want queue.Status) queue.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if resp.Task.Status == want {
			return resp.Task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, want)
	return queue.Task{}
}

func TestSubmitAndCompleteTranscriptionTask(t *testing.T) {
	client, _ := newTestDaemon(t)
	ctx := context.Background()

	resp, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{
		FilePath: "/recordings/meeting.mp3",
		Language: "th",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.TaskID == "" || resp.Status != queue.StatusQueued {
		t.Fatalf("unexpected submit response %+v", resp)
	}

	done := waitForClientStatus(t, client, resp.TaskID, queue.StatusCompleted)
	if done.Result != `{"text":"ok"}` {
		t.Fatalf("unexpected result %q", done.Result)
	}
	if done.Progress != 1 {
		t.Fatalf("expected progress 1, got %v", done.Progress)
	}
	if done.FileName != "meeting.mp3" {
		t.Fatalf("expected derived file name, got %q", done.FileName)
	}
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	client, _ := newTestDaemon(t)
	ctx := context.Background()

	if _, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{}); err == nil {
		t.Fatal("expected error for missing file_path")
	} else if !strings.Contains(err.Error(), "file_path is required") {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{FilePath: "/tmp/notes.txt"})
	if err == nil || !strings.Contains(err.Error(), "unsupported audio format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}

	_, err = client.SubmitRiskDetection(ctx, api.SubmitRiskDetectionRequest{})
	if err == nil || !strings.Contains(err.Error(), "text is required") {
		t.Fatalf("expected text required error, got %v", err)
	}
}

func TestCancelQueuedTask(t *testing.T) {
	block := make(chan struct{})
	handler := &stubHandler{taskType: queue.TypeTranscription, result: `{"text":"ok"}`, block: block}
	client, _ := newTestDaemon(t, handler)
	defer close(block)
	ctx := context.Background()

	first, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{FilePath: "/a/first.mp3"})
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	waitForClientStatus(t, client, first.TaskID, queue.StatusProcessing)

	second, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{FilePath: "/a/second.mp3"})
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}

	cancelled, err := client.CancelTask(ctx, second.TaskID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Task.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Task.Status)
	}

	// The processing task can no longer be cancelled.
	if _, err := client.CancelTask(ctx, first.TaskID); err == nil {
		t.Fatal("expected conflict cancelling a processing task")
	}
}

func TestGetUnknownTaskReturnsNotFound(t *testing.T) {
	client, _ := newTestDaemon(t)
	_, err := client.GetTask(context.Background(), "no-such-task")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestStatsAndHealthEndpoints(t *testing.T) {
	client, _ := newTestDaemon(t)
	ctx := context.Background()

	resp, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{FilePath: "/a/one.mp3"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForClientStatus(t, client, resp.TaskID, queue.StatusCompleted)

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Stats.TotalTasks != 1 || stats.Stats.CompletedTasks != 1 {
		t.Fatalf("unexpected stats %+v", stats.Stats)
	}
	if stats.Stats.UptimeSeconds <= 0 {
		t.Fatalf("expected positive uptime, got %v", stats.Stats.UptimeSeconds)
	}

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	// The in-memory backend reports unhealthy storage on purpose.
	if health.StorageHealthy {
		t.Fatal("memory backend should report unhealthy storage")
	}
	if health.Status != "degraded" {
		t.Fatalf("unexpected health status %q", health.Status)
	}
}

func TestBackupEndpointWritesSnapshot(t *testing.T) {
	client, cfg := newTestDaemon(t)
	ctx := context.Background()

	if _, err := client.SubmitTranscription(ctx, api.SubmitTranscriptionRequest{FilePath: "/a/one.mp3"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	resp, err := client.TriggerBackup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !resp.Saved || resp.LastBackup == nil {
		t.Fatalf("unexpected backup response %+v", resp)
	}

	data, err := os.ReadFile(cfg.BackupPath())
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap queue.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if got := len(snap.Tasks) + len(snap.Completed); got != 1 {
		t.Fatalf("expected 1 task in snapshot, got %d", got)
	}
}
