package queue

import (
	"strings"
	"time"
)

// TaskType discriminates the task variants carried by the queue.
type TaskType string

const (
	TypeTranscription TaskType = "transcription"
	TypeRiskDetection TaskType = "risk_detection"
)

// ValidType reports whether the given type is known.
func ValidType(t TaskType) bool {
	return t == TypeTranscription || t == TypeRiskDetection
}

// Status represents the lifecycle of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// StuckTaskMessage is the error message set on tasks reclaimed by the
// stuck-task sweep.
const StuckTaskMessage = "Task exceeded maximum processing time"

// ValidStatus reports whether the given status string is known.
func ValidStatus(status Status) bool {
	for _, known := range allStatuses {
		if status == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends the task lifecycle. Terminal
// tasks never transition again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus normalizes a user-supplied status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !ValidStatus(status) {
		return "", false
	}
	return status, true
}

// Task is one unit of work owned by the queue.
type Task struct {
	TaskID      string     `json:"task_id"`
	TaskType    TaskType   `json:"task_type"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is a JSON document produced by the worker on completion.
	Result       string  `json:"result,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Progress     float64 `json:"progress"`

	Priority int `json:"priority"`
	// Seq is assigned by the store at push and breaks priority ties in
	// submission order.
	Seq        int64 `json:"seq"`
	RetryCount int   `json:"retry_count"`
	MaxRetries int   `json:"max_retries"`

	// Transcription fields.
	FilePath string `json:"file_path,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Language string `json:"language,omitempty"`

	// Risk detection fields.
	TranscriptionID string `json:"transcription_id,omitempty"`
	Text            string `json:"text,omitempty"`
}

// Score orders the queue: higher priority wins, earlier submission
// breaks ties. Stored in backup snapshots so recovery reproduces the
// exact pop order.
func (t *Task) Score() int64 {
	return int64(t.Priority)*1_000_000_000 + t.Seq
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

// QueueStats summarizes queue state for health and stats endpoints.
type QueueStats struct {
	TotalTasks      int  `json:"total_tasks"`
	QueuedTasks     int  `json:"queued_tasks"`
	ProcessingTasks int  `json:"processing_tasks"`
	CompletedTasks  int  `json:"completed_tasks"`
	FailedTasks     int  `json:"failed_tasks"`
	CancelledTasks  int  `json:"cancelled_tasks"`
	StorageHealthy  bool `json:"storage_healthy"`

	UptimeSeconds float64    `json:"uptime_seconds"`
	LastBackup    *time.Time `json:"last_backup,omitempty"`
}

// StatusUpdate carries the optional fields of an update_status call.
// Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	Progress     *float64
	Result       *string
	ErrorMessage *string
}
