package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STOCKPILE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 15*time.Minute, cfg.SnapshotInterval)
	assert.Equal(t, "https://api.financialdatasets.ai", cfg.FindataBaseURL)
	assert.Equal(t, filepath.Join(cfg.DataDir, "cache.snapshot"), cfg.SnapshotPath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "stockpile.db"), cfg.CatalogPath())
	assert.Nil(t, cfg.Backup, "backup should be disabled without credentials")
	assert.Empty(t, cfg.StreamTickers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STOCKPILE_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9100")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("PRICE_STREAM_TICKERS", "AAPL, MSFT,NVDA ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.StreamTickers)
}

func TestLoadBackupRequiresFullCredentials(t *testing.T) {
	t.Setenv("STOCKPILE_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_S3_BUCKET", "stockpile-backups")
	t.Setenv("BACKUP_S3_ACCESS_KEY_ID", "key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Backup, "missing secret key should leave backup disabled")

	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "secret")
	cfg, err = Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Backup)
	assert.Equal(t, "stockpile-backups", cfg.Backup.Bucket)
	assert.Equal(t, 14, cfg.Backup.Retention)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("STOCKPILE_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-port")
	t.Setenv("CACHE_TTL", "eventually")
	t.Setenv("DEV_MODE", "definitely")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.DevMode)
}
