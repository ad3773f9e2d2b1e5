package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the sampling plan: collect hotel listings zone by zone",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := eng.PlanAndRun(ctx)
		if sum != nil {
			fmt.Printf("accepted %d of %d hotels in %s\n",
				sum.HotelsAccepted, sum.ExpectedTotal, sum.Elapsed.Round(time.Second))
			if len(sum.ShortfallByZone) > 0 {
				fmt.Println("short zones:")
				for code, n := range sum.ShortfallByZone {
					fmt.Printf("  zone %s short by %d\n", code, n)
				}
			}
			if sum.FetchErrors > 0 {
				fmt.Printf("fetch errors: %d (tasks requeued)\n", sum.FetchErrors)
			}
		}
		if err != nil {
			zap.L().Error("crawl aborted", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&planPath, "plan", "", "plan YAML path (default embedded Guangzhou plan)")
	crawlCmd.Flags().StringSliceVar(&regionNames, "region", nil, "restrict the run to the named region(s)")
	rootCmd.AddCommand(crawlCmd)
}
