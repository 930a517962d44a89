package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func dlqCmd(a *app) *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the dead letter queue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all dead jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			jobs, err := c.DLQ().List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list DLQ jobs: %w", err)
			}
			if a.jsonOut {
				return a.printJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Dead letter queue is empty.")
				return nil
			}
			return printJobs(cmd, jobs)
		},
	}

	retry := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to pending with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.DLQ().Retry(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to retry %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s moved from DLQ to pending.\n", args[0])
			return nil
		},
	}

	dlq.AddCommand(list, retry)
	return dlq
}
