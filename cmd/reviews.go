package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/task"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Create and run review-fetch work",
}

var reviewsCreateHotel string

var reviewsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Enqueue a review task for every eligible hotel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sched := task.NewScheduler(st)
		if reviewsCreateHotel != "" {
			id, err := sched.CreateReviewTask(ctx, reviewsCreateHotel, cfg.Review.MaxTotal)
			if err != nil {
				return err
			}
			fmt.Printf("created review task %s for hotel %s\n", id, reviewsCreateHotel)
			return nil
		}
		ids, err := sched.CreateReviewTasks(ctx, cfg.Review.MinReviews, cfg.Review.MaxTotal)
		if err != nil {
			return err
		}
		fmt.Printf("created %d review tasks\n", len(ids))
		return nil
	},
}

var reviewsRunLimit int

var reviewsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain pending review tasks against the live browser session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit := reviewsRunLimit
		if limit == 0 {
			limit = cfg.Crawl.TaskBatchLimit
		}
		rep, err := eng.RunPendingTasks(ctx, model.TaskReviewFetch, limit)
		if rep != nil {
			fmt.Printf("ran %d tasks: %d completed, %d skipped, %d failed\n",
				rep.Run, rep.Completed, rep.Skipped, rep.Failed)
		}
		return err
	},
}

func init() {
	reviewsCreateCmd.Flags().StringVar(&reviewsCreateHotel, "hotel", "", "enqueue for a single hotel ID, skipping the threshold")
	reviewsRunCmd.Flags().IntVar(&reviewsRunLimit, "limit", 0, "max tasks to run (default from config)")
	reviewsCmd.AddCommand(reviewsCreateCmd, reviewsRunCmd)
	rootCmd.AddCommand(reviewsCmd)
}
