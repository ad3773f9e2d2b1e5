package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the sampling plan and its expected totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan()
		if err != nil {
			return err
		}

		fmt.Printf("city: %s (%s)\n\n", p.City, p.CityCode)
		fmt.Println("tiers:")
		for _, t := range p.Tiers {
			fmt.Printf("  %-8s %5d-%-5d target %d/zone  weight %d\n",
				t.Level, t.MinPrice, t.MaxPrice, t.Target, t.Weight)
		}

		fmt.Println("\nregions:")
		for _, r := range p.Regions {
			fmt.Printf("  %-28s weight %-2d zones %d (target %d)\n",
				r.Name, r.Weight, len(r.Zones), len(r.Zones)*p.ZoneTarget())
			for _, z := range r.Zones {
				fmt.Printf("    %-26s code %s\n", z.Name, z.Code)
			}
		}

		fmt.Printf("\nper-zone target: %d\nexpected total:  %d\n", p.ZoneTarget(), p.ExpectedTotal())
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planPath, "plan", "", "plan YAML path (default embedded Guangzhou plan)")
	rootCmd.AddCommand(planCmd)
}
