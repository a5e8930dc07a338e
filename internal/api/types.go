package api

import (
	"time"

	"murmur/internal/queue"
)

// SubmitTranscriptionRequest enqueues a transcription task.
type SubmitTranscriptionRequest struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name,omitempty"`
	Language string `json:"language,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// SubmitRiskDetectionRequest enqueues a risk detection task.
type SubmitRiskDetectionRequest struct {
	TranscriptionID string `json:"transcription_id,omitempty"`
	Text            string `json:"text"`
	Priority        int    `json:"priority,omitempty"`
}

// SubmitResponse acknowledges an accepted task.
type SubmitResponse struct {
	TaskID string       `json:"task_id"`
	Status queue.Status `json:"status"`
}

// TaskResponse wraps a single task record.
type TaskResponse struct {
	Task queue.Task `json:"task"`
}

// TaskListResponse wraps a collection of task records.
type TaskListResponse struct {
	Tasks []queue.Task `json:"tasks"`
	Count int          `json:"count"`
}

// StatsResponse reports queue counters and storage health.
type StatsResponse struct {
	Stats queue.QueueStats `json:"stats"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status         string  `json:"status"`
	StorageHealthy bool    `json:"storage_healthy"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Version        string  `json:"version,omitempty"`
}

// BackupResponse reports the outcome of a manual snapshot request.
type BackupResponse struct {
	Saved      bool       `json:"saved"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
}

// CleanupResponse reports how many stuck tasks were reclaimed.
type CleanupResponse struct {
	Reclaimed int64 `json:"reclaimed"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
