package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no visibility.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "visibility.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.Store.MaxConns)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Providers.Perplexity.BaseURL)
	assert.Equal(t, 3, cfg.Sampling.Concurrency)
	assert.Equal(t, 500, cfg.Sampling.BatchPauseMs)
	assert.Equal(t, 1024, cfg.Sampling.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Sampling.Temperature, 0.001)
	assert.Equal(t, 60, cfg.Sampling.TimeoutSecs)
	assert.Equal(t, 30, cfg.Scoring.LookbackDays)
	assert.Equal(t, 500, cfg.Scoring.MaxResults)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, 2000, cfg.Worker.PollIntervalMs)
	assert.Equal(t, 15, cfg.Worker.LeaseMinutes)
	assert.Equal(t, 60, cfg.Worker.ReapIntervalSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 50.0, cfg.Monitoring.CostThresholdUSD, 0.001)
	assert.Equal(t, 100, cfg.Monitoring.QueueBacklogThreshold)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/visibility
sampling:
  concurrency: 5
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visibility.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/visibility", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Sampling.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Scoring.LookbackDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visibility.yaml"), []byte(yaml), 0644))

	t.Setenv("VISIBILITY_STORE_DRIVER", "postgres")
	t.Setenv("VISIBILITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("VISIBILITY_SERVER_PORT", "3000")
	t.Setenv("VISIBILITY_PROVIDERS_ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Providers.Anthropic.APIKey)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "visibility.db"
	cfg.Sampling.Concurrency = 3
	cfg.Scoring.LookbackDays = 30
	cfg.Scoring.MaxResults = 500
	cfg.Worker.Count = 2
	cfg.Worker.PollIntervalMs = 2000
	cfg.Worker.LeaseMinutes = 15
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateCLI_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateSQLiteRequiresPath(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/visibility"
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateWork_Bounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Worker.Count = 0
	err := cfg.Validate("work")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.count must be between 1 and 32")

	cfg.Worker.Count = 33
	err = cfg.Validate("work")
	assert.Error(t, err)

	cfg.Worker.Count = 32
	assert.NoError(t, cfg.Validate("work"))
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Sampling.Concurrency = 0
	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sampling.concurrency must be between 1 and 10")

	cfg.Sampling.Concurrency = 11
	err = cfg.Validate("cli")
	assert.Error(t, err)

	cfg.Sampling.Concurrency = 10
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
