package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meterscraper/internal/store"
	"meterscraper/pkg/models"
)

var uploadAll bool

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload stored readings to the hosted destination",
	Long: `Uploads readings from the local SQLite database to the hosted
PostgreSQL destination. Only readings not yet uploaded are sent unless
--all is given; the destination upsert makes re-uploads safe either way.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadAll, "all", false, "Re-upload every stored reading, not just pending ones")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("no postgres DSN configured (set postgres.dsn in config.yaml or POSTGRES_DSN)")
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var readings []models.MeterReading
	if uploadAll {
		readings, err = db.ListReadings("")
	} else {
		readings, err = db.ListUnuploaded()
	}
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Println("Nothing to upload")
		return nil
	}

	pg, err := store.New(cfg.Postgres.DSN, cfg.GetPostgresTable())
	if err != nil {
		return fmt.Errorf("connecting to destination: %w", err)
	}
	defer pg.Close()

	if err := pg.CreateTable(); err != nil {
		return err
	}

	if err := pg.UpsertBatch(readings); err != nil {
		return fmt.Errorf("uploading readings: %w", err)
	}

	for _, r := range readings {
		if err := db.MarkUploaded(r.ID); err != nil {
			return fmt.Errorf("marking reading %d uploaded: %w", r.ID, err)
		}
	}

	fmt.Printf("✓ Uploaded %d readings to %s\n", len(readings), cfg.GetPostgresTable())
	return nil
}
