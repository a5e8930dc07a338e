package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "seq, task_id, task_type, status, created_at, started_at, completed_at, result, error_message, progress, priority, retry_count, max_retries, file_path, file_name, language, transcription_id, text"

// Push enqueues a task. A missing TaskID gets a fresh UUID; Seq comes from
// the database.
func (s *SQLiteStore) Push(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
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

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            task_id, task_type, status, created_at, progress, priority,
            retry_count, max_retries, file_path, file_name, language,
            transcription_id, text
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID,
		string(task.TaskType),
		string(task.Status),
		task.CreatedAt.Format(time.RFC3339Nano),
		task.Progress,
		task.Priority,
		task.RetryCount,
		task.MaxRetries,
		nullableString(task.FilePath),
		nullableString(task.FileName),
		nullableString(task.Language),
		nullableString(task.TranscriptionID),
		nullableString(task.Text),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	task.Seq = seq
	return nil
}

// Pop atomically claims the best queued task. The claim re-checks status
// inside the transaction so two concurrent pops never return the same task.
func (s *SQLiteStore) Pop(ctx context.Context) (*Task, error) {
	ctx = ensureContext(ctx)
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		task, contended, err := s.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if !contended {
			return task, nil
		}
	}
	return nil, nil
}

func (s *SQLiteStore) tryClaim(ctx context.Context) (task *Task, contended bool, err error) {
	err = retryOnBusy(ctx, func() error {
		task, contended = nil, false

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY priority DESC, seq ASC LIMIT 1`,
			string(StatusQueued),
		)
		candidate, scanErr := scanTask(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}

		now := time.Now().UTC()
		res, execErr := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, started_at = ? WHERE task_id = ? AND status = ?`,
			string(StatusProcessing),
			now.Format(time.RFC3339Nano),
			candidate.TaskID,
			string(StatusQueued),
		)
		if execErr != nil {
			return execErr
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		if affected == 0 {
			// Another worker claimed it between select and update.
			contended = true
			return nil
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return commitErr
		}

		candidate.Status = StatusProcessing
		candidate.StartedAt = &now
		task = candidate
		return nil
	})
	return task, contended, err
}

// UpdateStatus transitions a task and applies the optional fields. Terminal
// tasks are immutable; the call reports false without touching them.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, taskID string, status Status, update StatusUpdate) (bool, error) {
	if !ValidStatus(status) {
		return false, fmt.Errorf("unknown status %q", status)
	}

	assignments := []string{"status = ?"}
	args := []any{string(status)}

	if status.IsTerminal() {
		assignments = append(assignments, "completed_at = ?")
		args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	}
	if status == StatusCompleted && update.Progress == nil {
		assignments = append(assignments, "progress = ?")
		args = append(args, 1.0)
	}
	if update.Progress != nil {
		assignments = append(assignments, "progress = ?")
		args = append(args, *update.Progress)
	}
	if update.Result != nil {
		assignments = append(assignments, "result = ?")
		args = append(args, *update.Result)
	}
	if update.ErrorMessage != nil {
		assignments = append(assignments, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}

	args = append(args, taskID,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled))

	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET `+strings.Join(assignments, ", ")+
			` WHERE task_id = ? AND status NOT IN (?, ?, ?)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetTask fetches a task by identifier.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "task_type = ?")
		args = append(args, string(filter.Type))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CancelQueued cancels a task only while it is still queued.
func (s *SQLiteStore) CancelQueued(ctx context.Context, taskID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, completed_at = ? WHERE task_id = ? AND status = ?`,
		string(StatusCancelled),
		time.Now().UTC().Format(time.RFC3339Nano),
		taskID,
		string(StatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Requeue returns a processing task to queued for another attempt.
func (s *SQLiteStore) Requeue(ctx context.Context, taskID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, started_at = NULL, progress = 0,
            retry_count = retry_count + 1
         WHERE task_id = ? AND status = ?`,
		string(StatusQueued),
		taskID,
		string(StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("requeue task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReclaimStuck fails processing tasks whose claim predates the cutoff.
func (s *SQLiteStore) ReclaimStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, completed_at = ?, error_message = ?
         WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		string(StatusFailed),
		time.Now().UTC().Format(time.RFC3339Nano),
		StuckTaskMessage,
		string(StatusProcessing),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts tasks per status.
func (s *SQLiteStore) Stats(ctx context.Context) (QueueStats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := QueueStats{StorageHealthy: true}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return QueueStats{}, err
		}
		stats.TotalTasks += count
		switch status {
		case StatusQueued:
			stats.QueuedTasks = count
		case StatusProcessing:
			stats.ProcessingTasks = count
		case StatusCompleted:
			stats.CompletedTasks = count
		case StatusFailed:
			stats.FailedTasks = count
		case StatusCancelled:
			stats.CancelledTasks = count
		}
	}
	return stats, rows.Err()
}

// Snapshot captures the full store state for backup.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	tasks, err := s.allTasksBySeq(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return buildSnapshot(tasks, stats), nil
}

func (s *SQLiteStore) allTasksBySeq(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM tasks ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Restore replaces store contents with the snapshot in one transaction.
func (s *SQLiteStore) Restore(ctx context.Context, snap *Snapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		for _, task := range snap.AllTasks() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				task.Seq,
				task.TaskID,
				string(task.TaskType),
				string(task.Status),
				task.CreatedAt.Format(time.RFC3339Nano),
				nullableTime(task.StartedAt),
				nullableTime(task.CompletedAt),
				nullableString(task.Result),
				nullableString(task.ErrorMessage),
				task.Progress,
				task.Priority,
				task.RetryCount,
				task.MaxRetries,
				nullableString(task.FilePath),
				nullableString(task.FileName),
				nullableString(task.Language),
				nullableString(task.TranscriptionID),
				nullableString(task.Text),
			); err != nil {
				return fmt.Errorf("restore task %s: %w", task.TaskID, err)
			}
		}
		return tx.Commit()
	})
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		seq             int64
		taskID          string
		taskType        string
		statusStr       string
		createdRaw      string
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		result          sql.NullString
		errorMessage    sql.NullString
		progress        float64
		priority        int
		retryCount      int
		maxRetries      int
		filePath        sql.NullString
		fileName        sql.NullString
		language        sql.NullString
		transcriptionID sql.NullString
		text            sql.NullString
	)

	if err := scanner.Scan(
		&seq,
		&taskID,
		&taskType,
		&statusStr,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&result,
		&errorMessage,
		&progress,
		&priority,
		&retryCount,
		&maxRetries,
		&filePath,
		&fileName,
		&language,
		&transcriptionID,
		&text,
	); err != nil {
		return nil, err
	}

	task := &Task{
		Seq:             seq,
		TaskID:          taskID,
		TaskType:        TaskType(taskType),
		Status:          Status(statusStr),
		Result:          result.String,
		ErrorMessage:    errorMessage.String,
		Progress:        progress,
		Priority:        priority,
		RetryCount:      retryCount,
		MaxRetries:      maxRetries,
		FilePath:        filePath.String,
		FileName:        fileName.String,
		Language:        language.String,
		TranscriptionID: transcriptionID.String,
		Text:            text.String,
	}
	task.CreatedAt = parseTimeString(createdRaw)
	if startedRaw.Valid {
		started := parseTimeString(startedRaw.String)
		task.StartedAt = &started
	}
	if completedRaw.Valid {
		completed := parseTimeString(completedRaw.String)
		task.CompletedAt = &completed
	}
	return task, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
