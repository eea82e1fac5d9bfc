// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (always absolute)
	SnapshotsDir   string // Directory of raw HTML snapshots to import (optional)
	PricesCSV      string // Path to a price series CSV to import (optional)
	Port           int
	LogLevel       string
	DevMode        bool
	Workers        int    // Pipeline worker pool size (0 = NumCPU)
	RunSchedule    string // Cron spec for scheduled pipeline runs (empty = disabled)
	BackupBucket   string // S3 bucket for database backups (empty = disabled)
	BackupPrefix   string // Key prefix inside the backup bucket
	BackupSchedule string // Cron spec for scheduled backups
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FUNDTRAIL_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		SnapshotsDir:   getEnv("FUNDTRAIL_SNAPSHOTS_DIR", ""),
		PricesCSV:      getEnv("FUNDTRAIL_PRICES_CSV", ""),
		Port:           getEnvAsInt("FUNDTRAIL_PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		Workers:        getEnvAsInt("FUNDTRAIL_WORKERS", 0),
		RunSchedule:    getEnv("FUNDTRAIL_RUN_SCHEDULE", ""),
		BackupBucket:   getEnv("FUNDTRAIL_BACKUP_BUCKET", ""),
		BackupPrefix:   getEnv("FUNDTRAIL_BACKUP_PREFIX", "fundtrail"),
		BackupSchedule: getEnv("FUNDTRAIL_BACKUP_SCHEDULE", "0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// DatabasePath returns the path of a named database inside the data directory.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
