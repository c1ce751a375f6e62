package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meterscraper/internal/database"
	"meterscraper/internal/normalize"
	"meterscraper/internal/scraper"
	"meterscraper/internal/store"
	"meterscraper/pkg/models"
)

var (
	fetchVisible bool
	fetchUpload  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch usage data from the MyMeter portal",
	Long: `Scrapes gas usage data from the MyMeter portal using saved cookies,
logging in with configured credentials when the session has expired.
Readings are stored in the local SQLite database and, with --upload,
pushed to the hosted PostgreSQL destination.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchVisible, "visible", false, "Show browser window (for debugging)")
	fetchCmd.Flags().BoolVar(&fetchUpload, "upload", false, "Upload readings to the hosted destination after fetching")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(cfg.Portal.Cookies) == 0 && (cfg.Portal.Username == "" || cfg.Portal.Password == "") {
		return fmt.Errorf("no authentication configured. Add username/password to config.yaml or run 'meterscraper login'")
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	solver := scraper.NewCaptchaSolver(cfg.Captcha.APIKey)
	if solver == nil {
		fmt.Println("⚠ No captcha API key configured, captcha solving disabled")
	}

	mymeter := scraper.NewMyMeterScraper(cfg.Portal.Cookies, cfg.Portal.Username, cfg.Portal.Password, solver, cfg.GetMaxRetries())
	mymeter.SetVisible(fetchVisible)

	ctx := context.Background()
	daysToFetch := cfg.GetDaysToFetch()
	fmt.Printf("Fetching usage data (last %d days)...\n", daysToFetch)

	rows, err := mymeter.Scrape(ctx, daysToFetch)

	// An auth failure with credentials on hand is worth one clean retry;
	// the scraper discards the stale cookies and logs in from scratch
	var authErr *scraper.AuthError
	if errors.As(err, &authErr) && cfg.Portal.Username != "" && cfg.Portal.Password != "" {
		fmt.Printf("⚠ Scraping failed: %v\n", err)
		fmt.Println("⚠ Retrying with a fresh login...")

		mymeter = scraper.NewMyMeterScraper(nil, cfg.Portal.Username, cfg.Portal.Password, solver, cfg.GetMaxRetries())
		mymeter.SetVisible(fetchVisible)
		rows, err = mymeter.Scrape(ctx, daysToFetch)
	}
	if err != nil {
		return fmt.Errorf("scraping: %w", err)
	}

	// Persist the refreshed session for the next run
	if cookies := mymeter.Cookies(); len(cookies) > 0 {
		cfg.Portal.Cookies = cookies
		if err := saveConfig(cfg); err != nil {
			fmt.Printf("Warning: Could not save session cookies: %v\n", err)
		}
	}

	if len(rows) == 0 {
		fmt.Println("No data found")
		return nil
	}

	batch, skipped := normalize.BuildBatch(rows, normalizeConfig(cfg))
	if skipped > 0 {
		fmt.Printf("⚠ Skipped %d rows missing account, meter, or start\n", skipped)
	}
	if len(batch) == 0 {
		fmt.Println("No usable readings in export")
		return nil
	}

	if err := db.UpsertBatch(batch); err != nil {
		return fmt.Errorf("storing readings: %w", err)
	}
	fmt.Printf("✓ Stored %d readings (existing keys updated in place)\n", len(batch))

	if fetchUpload {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("--upload requires a postgres DSN in config or POSTGRES_DSN")
		}

		pg, err := store.New(cfg.Postgres.DSN, cfg.GetPostgresTable())
		if err != nil {
			return fmt.Errorf("connecting to destination: %w", err)
		}
		defer pg.Close()

		if err := pg.CreateTable(); err != nil {
			return err
		}
		if err := pg.UpsertBatch(batch); err != nil {
			return fmt.Errorf("uploading readings: %w", err)
		}
		if err := markBatchUploaded(db, batch); err != nil {
			return err
		}
		fmt.Printf("✓ Uploaded %d readings to %s\n", len(batch), cfg.GetPostgresTable())
	}

	return nil
}

// markBatchUploaded flags the stored rows for a just-uploaded batch so a
// later 'upload' run does not re-send them. The batch rows carry no
// database IDs, so each is looked up by its composite key.
func markBatchUploaded(db *database.DB, batch []models.MeterReading) error {
	for i := range batch {
		r := &batch[i]
		stored, err := db.GetReading(r.AccountNumber, r.Meter, r.Start)
		if err != nil {
			return fmt.Errorf("looking up reading %s/%s/%s: %w", r.AccountNumber, r.Meter, r.Start, err)
		}
		if stored == nil {
			continue
		}
		if err := db.MarkUploaded(stored.ID); err != nil {
			return fmt.Errorf("marking reading %d uploaded: %w", stored.ID, err)
		}
	}
	return nil
}
