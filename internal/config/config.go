package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Portal         PortalConfig   `yaml:"portal"`
	Captcha        CaptchaConfig  `yaml:"captcha,omitempty"`
	Columns        ColumnsConfig  `yaml:"columns,omitempty"`
	Postgres       PostgresConfig `yaml:"postgres,omitempty"`
	MQTT           MQTTConfig     `yaml:"mqtt,omitempty"`
	DaysToFetch    int            `yaml:"days_to_fetch,omitempty"`   // Export window in days (fallback: 14)
	MaxRetries     int            `yaml:"max_retries,omitempty"`     // Login/CAPTCHA retry attempts (fallback: 3)
	DefaultAccount string         `yaml:"default_account,omitempty"` // Fallback when the CSV omits the account column
	DefaultMeter   string         `yaml:"default_meter,omitempty"`   // Fallback when the CSV omits the meter column
}

// PortalConfig holds credentials and session state for the MyMeter portal
type PortalConfig struct {
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Cookies  []Cookie `yaml:"cookies,omitempty"`
}

// CaptchaConfig holds the 2captcha API settings
type CaptchaConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
}

// ColumnsConfig overrides the candidate column names recognized in CSV
// exports. The portal's header vocabulary has drifted between releases
// ("account number" vs "account", "meter" vs "meter id"), so the alias
// lists are configuration, not code. Empty lists fall back to built-in
// aliases.
type ColumnsConfig struct {
	Account []string `yaml:"account,omitempty"`
	Meter   []string `yaml:"meter,omitempty"`
	Start   []string `yaml:"start,omitempty"`
	Usage   []string `yaml:"usage,omitempty"`
	Cost    []string `yaml:"cost,omitempty"`
}

// PostgresConfig holds the hosted destination database settings
type PostgresConfig struct {
	DSN   string `yaml:"dsn,omitempty"`
	Table string `yaml:"table,omitempty"` // fallback: meter_readings
}

// MQTTConfig holds MQTT broker configuration for publishing readings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker,omitempty"` // e.g. "localhost:1883"
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // fallback: meterscraper
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `yaml:"name"`
	Value    string  `yaml:"value"`
	Domain   string  `yaml:"domain"`
	Path     string  `yaml:"path"`
	Expires  float64 `yaml:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty"`
}

// Load reads the config file and applies environment overrides.
// A missing file is not an error; credentials can come entirely from
// the environment (or a .env file in the working directory).
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	return &cfg, nil
}

// applyEnv overrides file settings with environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("MYMETER_USERNAME"); v != "" {
		c.Portal.Username = v
	}
	if v := os.Getenv("MYMETER_PASSWORD"); v != "" {
		c.Portal.Password = v
	}
	if v := os.Getenv("CAPTCHA_API_KEY"); v != "" {
		c.Captcha.APIKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetDaysToFetch returns the export window with a default of 14 days
func (c *Config) GetDaysToFetch() int {
	if c.DaysToFetch <= 0 {
		return 14 // Default to a 2-week window
	}
	return c.DaysToFetch
}

// GetMaxRetries returns the login/CAPTCHA retry budget with a default of 3
func (c *Config) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// GetPostgresTable returns the destination table name
func (c *Config) GetPostgresTable() string {
	if c.Postgres.Table == "" {
		return "meter_readings"
	}
	return c.Postgres.Table
}

// GetTopicPrefix returns the MQTT topic prefix
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "meterscraper"
	}
	return c.MQTT.TopicPrefix
}
