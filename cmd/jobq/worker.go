package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/UniQw/jobq"
	"github.com/spf13/cobra"
)

func workerCmd(a *app) *cobra.Command {
	worker := &cobra.Command{
		Use:   "worker",
		Short: "Run queue workers",
	}

	var count int
	start := &cobra.Command{
		Use:   "start",
		Short: "Start workers and process jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("count") {
				if count < 1 {
					return fmt.Errorf("%w: count must be at least 1", jobq.ErrInvalidInput)
				}
				a.cfg.Queue.Concurrency = count
			}
			d, err := a.dispatcher()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Starting %d worker(s). Press Ctrl+C to stop.\n", a.cfg.Queue.Concurrency)
			d.Start()
			<-ctx.Done()

			fmt.Fprintln(cmd.OutOrStdout(), "Shutting down, waiting for running jobs to finish...")
			d.Stop()
			fmt.Fprintln(cmd.OutOrStdout(), "Workers stopped.")
			return nil
		},
	}
	start.Flags().IntVar(&count, "count", 1, "number of concurrent workers")

	once := &cobra.Command{
		Use:   "run-once",
		Short: "Process every job that is due now, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dispatcher()
			if err != nil {
				return err
			}
			n, err := drain(cmd.Context(), d)
			if err != nil {
				return fmt.Errorf("failed after %d job(s): %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s).\n", n)
			return nil
		},
	}

	worker.AddCommand(start, once)
	return worker
}

// dispatcher builds a dispatcher from the loaded queue settings.
func (a *app) dispatcher() (*jobq.Dispatcher, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	q := a.cfg.Queue
	d := jobq.NewDispatcher(store, jobq.NewShellExecutor(q.CommandTimeout), jobq.DispatcherConfig{
		PollInterval:      q.PollInterval,
		Concurrency:       q.Concurrency,
		Backoff:           jobq.Backoff{Base: q.BackoffBase, Max: q.BackoffMax},
		VisibilityTimeout: q.VisibilityTimeout,
		Logger:            a.log,
	})
	d.Use(jobq.LoggingMiddleware(a.log))
	return d, nil
}

// drain processes due jobs in the foreground until none are left.
func drain(ctx context.Context, d *jobq.Dispatcher) (int, error) {
	n := 0
	for {
		ok, err := d.Tick(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}
