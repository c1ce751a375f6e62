package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsAccount string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-meter usage totals",
	Long:  `Aggregates stored readings per meter: reading count, total CCF, and total cost.`,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsAccount, "account", "", "Filter by account number")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	totals, err := db.MeterTotals(statsAccount)
	if err != nil {
		return fmt.Errorf("aggregating readings: %w", err)
	}

	if len(totals) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%-16s %10s %12s %12s\n", "Meter", "Readings", "Total CCF", "Total Cost")
	fmt.Println("------------------------------------------------------------")

	for _, t := range totals {
		fmt.Printf("%-16s %10d %12.2f %11s\n", t.Meter, t.Readings, t.TotalUsage, fmt.Sprintf("$%.2f", t.TotalCost))
	}

	fmt.Println("------------------------------------------------------------")
	return nil
}
