package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listAccount string
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored meter readings",
	Long:  `Displays stored gas usage readings from the local database.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listAccount, "account", "", "Filter by account number")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of readings to display (0 = all)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	readings, err := db.ListReadings(listAccount)
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	if listLimit > 0 && len(readings) > listLimit {
		readings = readings[:listLimit]
	}

	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("%-26s %-12s %-12s %10s %10s\n", "Start", "Account", "Meter", "CCF", "Cost")
	fmt.Println("--------------------------------------------------------------------------------")

	var totalUsage, totalCost float64
	for _, r := range readings {
		usageStr, costStr := "-", "-"
		if r.Usage != nil {
			usageStr = fmt.Sprintf("%.2f", *r.Usage)
			totalUsage += *r.Usage
		}
		if r.Cost != nil {
			costStr = fmt.Sprintf("$%.2f", *r.Cost)
			totalCost += *r.Cost
		}
		fmt.Printf("%-26s %-12s %-12s %10s %10s\n", r.Start, r.AccountNumber, r.Meter, usageStr, costStr)
	}

	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("Total: %.2f CCF, $%.2f (%d readings)\n", totalUsage, totalCost, len(readings))

	return nil
}
