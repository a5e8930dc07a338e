package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon unreachable: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:  %s\n", health.Status)
			fmt.Fprintf(out, "Storage: %s\n", storageLabel(health.StorageHealthy))
			fmt.Fprintf(out, "Uptime:  %s\n", formatUptime(health.UptimeSeconds))
			return nil
		},
	}
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			stats := resp.Stats

			rows := [][]string{
				{"queued", strconv.Itoa(stats.QueuedTasks)},
				{"processing", strconv.Itoa(stats.ProcessingTasks)},
				{"completed", strconv.Itoa(stats.CompletedTasks)},
				{"failed", strconv.Itoa(stats.FailedTasks)},
				{"cancelled", strconv.Itoa(stats.CancelledTasks)},
				{"total", strconv.Itoa(stats.TotalTasks)},
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"STATUS", "COUNT"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Storage: %s\n", storageLabel(stats.StorageHealthy))
			if stats.LastBackup != nil {
				fmt.Fprintf(out, "Last backup: %s\n", formatTime(*stats.LastBackup))
			}
			return nil
		},
	}
	return cmd
}

func storageLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded (in-memory)"
}

func formatUptime(seconds float64) string {
	return (time.Duration(seconds) * time.Second).String()
}
