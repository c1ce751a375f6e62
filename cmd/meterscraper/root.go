package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"meterscraper/internal/config"
	"meterscraper/internal/database"
	"meterscraper/internal/normalize"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "meterscraper",
	Short: "Scrape gas usage data from the MyMeter portal",
	Long: `MeterScraper is a CLI tool to collect gas usage data from the MyMeter
utility portal. It uses browser automation to export usage CSVs, normalizes
the rows, and stores them in a local SQLite database with optional upload
to a hosted PostgreSQL destination.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// normalizeConfig maps the config file's column aliases and fallbacks
// into the normalizer's settings
func normalizeConfig(cfg *config.Config) normalize.Config {
	return normalize.Config{
		DefaultAccount: cfg.DefaultAccount,
		DefaultMeter:   cfg.DefaultMeter,
		AccountColumns: cfg.Columns.Account,
		MeterColumns:   cfg.Columns.Meter,
		StartColumns:   cfg.Columns.Start,
		UsageColumns:   cfg.Columns.Usage,
		CostColumns:    cfg.Columns.Cost,
	}
}
