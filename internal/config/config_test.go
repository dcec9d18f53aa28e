package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_DB", "products")
	t.Setenv("POSTGRES_USER", "engine")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, OutputBoth, cfg.OutputTarget)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 3, cfg.Webhook.RetryAttempts)
	require.Equal(t, "disable", cfg.Database.SSL)
	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, "products", cfg.Database.DB)
	require.Equal(t, "engine", cfg.Database.User)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
output_target: processed
batch_size: 250
log_level: debug
database:
  host: db.internal
  port: 5432
  db: products
  user: engine
  password: secret
webhook:
  base_url: https://orchestrator.internal/hooks
  timeout: 10s
  retry_attempts: 5
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o600))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	require.Equal(t, OutputProcessed, cfg.OutputTarget)
	require.Equal(t, 250, cfg.BatchSize)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	require.Equal(t, 5, cfg.Webhook.RetryAttempts)
	require.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadRejectsInvalidBatchSize(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_DB", "products")
	t.Setenv("POSTGRES_USER", "engine")
	t.Setenv("BATCH_SIZE", "20000")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsMissingDatabaseHost(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsInvalidOutputTarget(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_DB", "products")
	t.Setenv("POSTGRES_USER", "engine")
	t.Setenv("OUTPUT_TARGET", "nowhere")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidShopType(t *testing.T) {
	require.True(t, ValidShopType("ah"))
	require.True(t, ValidShopType("kruidvat"))
	require.False(t, ValidShopType("bol"))
}
