package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meterscraper/internal/normalize"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a usage CSV exported manually",
	Long: `Normalizes a MyMeter usage CSV downloaded by hand and stores the
readings in the local SQLite database. Useful when the portal blocks
automation or for backfilling old exports.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening CSV: %w", err)
	}
	defer file.Close()

	rows, err := normalize.ReadRows(file)
	if err != nil {
		return fmt.Errorf("parsing CSV: %w", err)
	}
	fmt.Printf("Read %d rows from %s\n", len(rows), path)

	batch, skipped := normalize.BuildBatch(rows, normalizeConfig(cfg))
	if skipped > 0 {
		fmt.Printf("⚠ Skipped %d rows missing account, meter, or start\n", skipped)
	}
	if len(batch) == 0 {
		fmt.Println("No usable readings in file")
		return nil
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.UpsertBatch(batch); err != nil {
		return fmt.Errorf("storing readings: %w", err)
	}

	fmt.Printf("✓ Stored %d readings (existing keys updated in place)\n", len(batch))
	return nil
}
