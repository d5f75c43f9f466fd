package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Error(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "RECEIPT_CACHE_TTL", "ACCESS_TOKEN_TTL", "SALES_LOOKBACK_DAYS", "EXPIRING_SOON_DAYS", "SEED_DEMO_DATA"} {
		unsetenv(t, key)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 10*time.Minute, cfg.ReceiptCacheTTL)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30, cfg.SalesLookbackDays)
	assert.Equal(t, 90, cfg.ExpiringSoonDays)
	assert.False(t, cfg.SeedDemoData)
}

func TestLoadSeedDemoDataOptIn(t *testing.T) {
	t.Setenv("SEED_DEMO_DATA", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.SeedDemoData)
}

func TestLoadReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EXPIRING_SOON_DAYS=60\nSALES_LOOKBACK_DAYS=14\n"), 0o600))
	t.Setenv("SALES_LOOKBACK_DAYS", "7")
	unsetenv(t, "EXPIRING_SOON_DAYS")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.SalesLookbackDays)
	assert.Equal(t, 60, cfg.ExpiringSoonDays)
}

func TestValidate(t *testing.T) {
	strong := strings.Repeat("s", 32)

	assert.NoError(t, Config{AuthSecret: strong, LogFormat: "json"}.Validate())
	assert.Error(t, Config{AuthSecret: "short", LogFormat: "text"}.Validate())
	assert.Error(t, Config{AuthSecret: strong, LogFormat: "xml"}.Validate())
}

// unsetenv removes key for the duration of the test; t.Setenv restores it.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
