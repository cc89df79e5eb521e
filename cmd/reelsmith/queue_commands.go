package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and administer the job queues",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueCleanCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueDrainCommand(ctx))
	queueCmd.AddCommand(newQueueObliterateCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-queue job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				names, err := store.QueueNames(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(names) == 0 {
					fmt.Fprintln(out, "No queues")
					return nil
				}
				sort.Strings(names)

				rows := make([][]string, 0, len(names))
				for _, name := range names {
					info, err := store.Describe(cmd.Context(), name)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						name,
						yesNo(info.Paused),
						fmt.Sprintf("%d", info.Counts[queue.StateWaiting]),
						fmt.Sprintf("%d", info.Counts[queue.StateDelayed]),
						fmt.Sprintf("%d", info.Counts[queue.StateActive]),
						fmt.Sprintf("%d", info.Counts[queue.StateCompleted]),
						fmt.Sprintf("%d", info.Counts[queue.StateFailed]),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"QUEUE", "PAUSED", "WAITING", "DELAYED", "ACTIVE", "COMPLETED", "FAILED"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFilter string

	cmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List jobs in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []queue.State
			if trimmed := strings.TrimSpace(stateFilter); trimmed != "" {
				state, ok := queue.ParseState(trimmed)
				if !ok {
					return fmt.Errorf("unknown state %q", trimmed)
				}
				states = append(states, state)
			}

			return ctx.withQueueStore(func(store *queue.Store) error {
				jobs, err := store.ListJobs(cmd.Context(), args[0], states...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					message := job.ProgressMessage
					if job.State == queue.StateFailed && job.ErrorMessage != "" {
						message = job.ErrorMessage
					}
					rows = append(rows, []string{
						job.ID,
						string(job.State),
						fmt.Sprintf("%d", job.Attempts),
						fmt.Sprintf("%.0f%%", job.ProgressPercent),
						truncate(message, 48),
						job.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"JOB", "STATE", "ATTEMPTS", "PROGRESS", "MESSAGE", "UPDATED"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stateFilter, "state", "", "Only show jobs in this state")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry <queue> [job-id]",
		Short: "Return failed jobs to the waiting state",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				if all {
					count, err := store.RetryAllFailed(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d job(s) reset for retry\n", count)
					return nil
				}
				if len(args) < 2 {
					return fmt.Errorf("pass a job id or --all")
				}
				if err := store.Retry(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Job %s reset for retry\n", args[1])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every failed job in the queue")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <queue> <job-id>",
		Short: "Remove a job that is not active",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !removed {
					fmt.Fprintf(out, "Job %s not found\n", args[1])
					return nil
				}
				fmt.Fprintf(out, "Job %s removed\n", args[1])
				return nil
			})
		},
	}
}

func newQueueCleanCommand(ctx *commandContext) *cobra.Command {
	var stateName string
	var graceSeconds int

	cmd := &cobra.Command{
		Use:   "clean <queue>",
		Short: "Delete finished jobs older than the grace period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, ok := queue.ParseState(stateName)
			if !ok {
				return fmt.Errorf("unknown state %q", stateName)
			}

			return ctx.withQueueStore(func(store *queue.Store) error {
				count, err := store.Clean(cmd.Context(), args[0], state, time.Duration(graceSeconds)*time.Second)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) cleaned\n", count)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stateName, "state", string(queue.StateCompleted), "State to clean (completed or failed)")
	cmd.Flags().IntVar(&graceSeconds, "grace", 0, "Only clean jobs idle at least this many seconds")
	return cmd
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <queue>",
		Short: "Stop workers from claiming jobs in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				if err := store.Pause(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %s paused\n", args[0])
				return nil
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <queue>",
		Short: "Resume claiming jobs in a paused queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				if err := store.Resume(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %s resumed\n", args[0])
				return nil
			})
		},
	}
}

func newQueueDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain <queue>",
		Short: "Remove all jobs that have not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				count, err := store.Drain(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) drained\n", count)
				return nil
			})
		},
	}
}

func newQueueObliterateCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "obliterate <queue>",
		Short: "Delete every job and the queue's pause flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("obliterate deletes every job in %s; rerun with --yes", args[0])
			}
			return ctx.withQueueStore(func(store *queue.Store) error {
				count, err := store.Obliterate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) removed\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the destructive operation")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
