package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a queue snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.TriggerBackup(cmd.Context())
			if err != nil {
				return err
			}
			if resp.LastBackup != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot saved at %s\n", formatTime(*resp.LastBackup))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Snapshot saved")
			}
			return nil
		},
	}
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup-stuck",
		Short: "Fail tasks stuck in processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.CleanupStuck(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d stuck task(s)\n", resp.Reclaimed)
			return nil
		},
	}
	return cmd
}
