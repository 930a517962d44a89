package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/UniQw/jobq"
	"github.com/spf13/cobra"
)

func listCmd(a *app) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := jobq.ParseState(state)
			if err != nil {
				return fmt.Errorf("%w (valid: pending, processing, failed, completed, dead)", err)
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			jobs, err := c.ListJobs(cmd.Context(), s, nil)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			if a.jsonOut {
				return a.printJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No jobs found in state: %s\n", s)
				return nil
			}
			return printJobs(cmd, jobs)
		},
	}
	cmd.Flags().StringVar(&state, "state", string(jobq.StatePending), "pending, processing, failed, completed or dead")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of job states",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			sum, err := c.StatusSummary(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if a.jsonOut {
				out := make(map[string]int, len(sum))
				for s, n := range sum {
					out[string(s)] = n
				}
				return a.printJSON(cmd, out)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range jobq.AllStates {
				fmt.Fprintf(w, "%s\t%d\n", s, sum[s])
			}
			return w.Flush()
		},
	}
}

func printJobs(cmd *cobra.Command, jobs []*jobq.Job) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPTS\tNEXT RUN\tCOMMAND\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			j.ID, j.DisplayState(), j.Attempts, j.MaxRetries,
			j.NextRunAt.Format(time.RFC3339), j.Command, j.LastError)
	}
	return w.Flush()
}
