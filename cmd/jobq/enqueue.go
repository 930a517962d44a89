package main

import (
	"fmt"
	"strings"

	"github.com/UniQw/jobq"
	"github.com/spf13/cobra"
)

func enqueueCmd(a *app) *cobra.Command {
	var (
		id         string
		maxRetries int
		delay      string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <command | job-json>",
		Short: "Add a shell command to the queue",
		Long: `Add a shell command to the queue. The argument is either the command line
itself or a JSON object such as {"id":"job1","command":"sleep 2","max_retries":3}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.parseEnqueueArg(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("id") {
				req.ID = id
			}
			if cmd.Flags().Changed("max-retries") {
				req.MaxRetries = &maxRetries
			}
			if cmd.Flags().Changed("delay") {
				req.Delay = delay
			}
			opts, err := req.Options()
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			jobID, err := c.Enqueue(cmd.Context(), req.Command, opts...)
			if err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}
			if a.jsonOut {
				return a.printJSON(cmd, map[string]string{"id": jobID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s enqueued.\n", jobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "job id (default: random UUID)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", jobq.DefaultMaxRetries, "attempts allowed before the job is dead-lettered")
	cmd.Flags().StringVar(&delay, "delay", "", "wait before the first run, e.g. 30s")
	return cmd
}

func (a *app) parseEnqueueArg(arg string) (jobq.EnqueueRequest, error) {
	var req jobq.EnqueueRequest
	if !strings.HasPrefix(strings.TrimSpace(arg), "{") {
		req.Command = arg
		return req, nil
	}
	if err := a.enc.Decode([]byte(arg), &req); err != nil {
		return req, fmt.Errorf("%w: invalid job JSON: %v", jobq.ErrInvalidInput, err)
	}
	return req, nil
}
