// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the snapshot, catalog DB and staging files (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Financial datasets API
	FindataBaseURL string
	FindataAPIKey  string

	// Cache behaviour
	CacheTTL         time.Duration // Applied at startup via cache.SetTTL
	SnapshotPath     string        // Where SaveSnapshot/LoadSnapshot read and write
	SnapshotInterval time.Duration // How often the scheduler snapshots the cache

	// Live price stream (disabled when StreamURL is empty)
	StreamURL     string
	StreamTickers []string

	// Offsite snapshot backup (nil when not configured)
	Backup *BackupConfig
}

// BackupConfig holds S3-compatible storage settings for offsite snapshot
// backups. Works with AWS S3 and Cloudflare R2 (set Endpoint for R2).
type BackupConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Retention       int // Number of backups to keep; older ones are pruned
}

// CatalogPath returns the path of the snapshot catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "stockpile.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory, resolve to an absolute path and make sure it
	// exists before anything tries to write a snapshot into it.
	dataDir := getEnv("STOCKPILE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8002),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		FindataBaseURL: getEnv("FINDATA_BASE_URL", "https://api.financialdatasets.ai"),
		FindataAPIKey:  getEnv("FINDATA_API_KEY", ""),

		CacheTTL:         getEnvAsDuration("CACHE_TTL", time.Hour),
		SnapshotPath:     getEnv("CACHE_SNAPSHOT_PATH", filepath.Join(absDataDir, "cache.snapshot")),
		SnapshotInterval: getEnvAsDuration("CACHE_SNAPSHOT_INTERVAL", 15*time.Minute),

		StreamURL:     getEnv("PRICE_STREAM_URL", ""),
		StreamTickers: getEnvAsList("PRICE_STREAM_TICKERS"),
	}

	// Backup is opt-in: only configured when a bucket and credentials exist.
	bucket := getEnv("BACKUP_S3_BUCKET", "")
	accessKey := getEnv("BACKUP_S3_ACCESS_KEY_ID", "")
	secretKey := getEnv("BACKUP_S3_SECRET_ACCESS_KEY", "")
	if bucket != "" && accessKey != "" && secretKey != "" {
		cfg.Backup = &BackupConfig{
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:          bucket,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
			Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
		}
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer, returning a
// fallback if unset or unparseable.
func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsBool retrieves an environment variable as a boolean, returning a
// fallback if unset or unparseable.
func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
// (e.g. "90m", "1h"), returning a fallback if unset or unparseable.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsList retrieves a comma-separated environment variable as a slice,
// trimming whitespace and dropping empty entries.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
