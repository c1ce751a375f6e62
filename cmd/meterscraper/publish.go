package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meterscraper/internal/publisher"
	"meterscraper/pkg/models"
)

var (
	publishSince string
	publishAll   bool
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored readings to MQTT",
	Long: `Publishes gas usage readings from the local database to the configured
MQTT broker. Only readings not yet published are sent unless --all is given.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish readings since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Re-publish every stored reading, not just pending ones")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Maximum number of readings to publish (0 = all)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var readings []models.MeterReading
	if publishAll {
		readings, err = db.ListReadings("")
	} else {
		readings, err = db.ListUnpublished()
	}
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	if publishSince != "" {
		since, err := parseDate(publishSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		readings = filterSince(readings, since)
	}

	if len(readings) == 0 {
		fmt.Println("Nothing to publish")
		return nil
	}

	if publishLimit > 0 && len(readings) > publishLimit {
		readings = readings[:publishLimit]
		fmt.Printf("Limiting to %d readings (--limit flag)\n", publishLimit)
	}

	pub, err := publisher.New(cfg.MQTT, cfg.GetTopicPrefix())
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer pub.Close()

	published := 0
	for _, r := range readings {
		if err := pub.Publish(r); err != nil {
			return fmt.Errorf("publishing reading %s/%s/%s: %w", r.AccountNumber, r.Meter, r.Start, err)
		}
		if err := db.MarkPublished(r.ID); err != nil {
			return fmt.Errorf("marking reading %d published: %w", r.ID, err)
		}
		published++
	}

	fmt.Printf("✓ Published %d readings to %s/...\n", published, cfg.GetTopicPrefix())
	return nil
}

// filterSince keeps readings whose start is at or after the cutoff.
// Rows with a start that no longer parses are kept rather than silently
// dropped by a display filter.
func filterSince(readings []models.MeterReading, since time.Time) []models.MeterReading {
	filtered := make([]models.MeterReading, 0, len(readings))
	for _, r := range readings {
		start, err := time.Parse(models.StartLayout, r.Start)
		if err == nil && start.Before(since) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	// Try absolute date format first
	t, err := time.Parse("2006-01-02", dateStr)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			return time.Now().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
