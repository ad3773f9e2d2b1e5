package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage the durable task queue",
}

var tasksStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts by status and kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := task.NewScheduler(st).Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("total %d: pending %d, in_progress %d, completed %d, failed %d, skipped %d\n",
			stats.Total, stats.Pending, stats.InProgress, stats.Completed, stats.Failed, stats.Skipped)
		for kind, n := range stats.ByKind {
			fmt.Printf("  %-13s %d\n", kind, n)
		}
		return nil
	},
}

var tasksResetCmd = &cobra.Command{
	Use:   "reset-failed",
	Short: "Reopen all failed tasks with a cleared retry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := task.NewScheduler(st).ResetFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("reopened %d failed tasks\n", n)
		return nil
	},
}

var (
	tasksRunKind  string
	tasksRunLimit int
)

var tasksRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain pending tasks of any kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit := tasksRunLimit
		if limit == 0 {
			limit = cfg.Crawl.TaskBatchLimit
		}
		rep, err := eng.RunPendingTasks(ctx, model.TaskKind(tasksRunKind), limit)
		if rep != nil {
			fmt.Printf("ran %d tasks: %d completed, %d skipped, %d failed\n",
				rep.Run, rep.Completed, rep.Skipped, rep.Failed)
		}
		return err
	},
}

func init() {
	tasksRunCmd.Flags().StringVar(&tasksRunKind, "kind", "", "task kind filter: list_fetch or review_fetch (default both)")
	tasksRunCmd.Flags().IntVar(&tasksRunLimit, "limit", 0, "max tasks to run (default from config)")
	tasksCmd.AddCommand(tasksStatsCmd, tasksResetCmd, tasksRunCmd)
	rootCmd.AddCommand(tasksCmd)
}
