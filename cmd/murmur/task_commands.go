package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var language string
	var priority int
	var name string

	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Submit an audio file for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.SubmitTranscription(cmd.Context(), api.SubmitTranscriptionRequest{
				FilePath: path,
				FileName: name,
				Language: language,
				Priority: priority,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s queued\n", resp.TaskID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Spoken language (e.g. th, en)")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Scheduling priority (higher runs first)")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the file")
	return cmd
}

func newRiskCommand(ctx *commandContext) *cobra.Command {
	var transcriptionID string
	var priority int

	cmd := &cobra.Command{
		Use:   "risk <text>",
		Short: "Submit text for risk analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.SubmitRiskDetection(cmd.Context(), api.SubmitRiskDetectionRequest{
				Text:            args[0],
				TranscriptionID: transcriptionID,
				Priority:        priority,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s queued\n", resp.TaskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&transcriptionID, "transcription-id", "", "Transcription task this text came from")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Scheduling priority (higher runs first)")
	return cmd
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var typeFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.TaskFilter{Limit: limit}
			if statusFlag != "" {
				status, ok := queue.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				filter.Status = status
			}
			if typeFlag != "" {
				taskType := queue.TaskType(strings.ToLower(strings.TrimSpace(typeFlag)))
				if !queue.ValidType(taskType) {
					return fmt.Errorf("unknown task type %q", typeFlag)
				}
				filter.Type = taskType
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.ListTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks found")
				return nil
			}

			rows := make([][]string, 0, len(resp.Tasks))
			for _, task := range resp.Tasks {
				rows = append(rows, []string{
					task.TaskID,
					string(task.TaskType),
					string(task.Status),
					formatProgress(task.Progress),
					strconv.Itoa(task.Priority),
					formatTime(task.CreatedAt),
					taskSubject(task),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "TYPE", "STATUS", "PROGRESS", "PRI", "CREATED", "SUBJECT"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by task type")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum tasks to list")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd, resp.Task)
			return nil
		},
	}
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", resp.Task.TaskID)
			return nil
		},
	}
	return cmd
}

func printTask(cmd *cobra.Command, task queue.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", task.TaskID)
	fmt.Fprintf(out, "Type:      %s\n", task.TaskType)
	fmt.Fprintf(out, "Status:    %s\n", task.Status)
	fmt.Fprintf(out, "Progress:  %s\n", formatProgress(task.Progress))
	fmt.Fprintf(out, "Priority:  %d\n", task.Priority)
	fmt.Fprintf(out, "Created:   %s\n", formatTime(task.CreatedAt))
	if task.StartedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", formatTime(*task.StartedAt))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", formatTime(*task.CompletedAt))
	}
	if task.RetryCount > 0 {
		fmt.Fprintf(out, "Retries:   %d\n", task.RetryCount)
	}
	if task.FilePath != "" {
		fmt.Fprintf(out, "File:      %s\n", task.FilePath)
	}
	if task.Language != "" {
		fmt.Fprintf(out, "Language:  %s\n", task.Language)
	}
	if task.TranscriptionID != "" {
		fmt.Fprintf(out, "Source:    %s\n", task.TranscriptionID)
	}
	if task.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", task.ErrorMessage)
	}
	if task.Result != "" {
		fmt.Fprintf(out, "Result:\n%s\n", task.Result)
	}
}

func taskSubject(task queue.Task) string {
	switch task.TaskType {
	case queue.TypeTranscription:
		if task.FileName != "" {
			return truncate(task.FileName, 40)
		}
		return truncate(task.FilePath, 40)
	case queue.TypeRiskDetection:
		return truncate(task.Text, 40)
	}
	return ""
}

func formatProgress(progress float64) string {
	return fmt.Sprintf("%.0f%%", progress*100)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
