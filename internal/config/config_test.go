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
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "onboard.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.SonnetModel)
	assert.Equal(t, 30, cfg.Oracle.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.Oracle.RatePerSec, 0.001)
	assert.Equal(t, 4, cfg.Oracle.RateBurst)
	assert.Equal(t, 5, cfg.Oracle.FailureThreshold)
	assert.Equal(t, 2, cfg.Session.MaxAttempts)
	assert.InDelta(t, 0.7, cfg.Session.ConfidenceThreshold, 0.001)
	assert.InDelta(t, 50.0, cfg.Session.AutoCompleteRiskBelow, 0.001)
	assert.Equal(t, "https://api.calendly.com", cfg.Calendly.BaseURL)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, 8, cfg.Bulk.MaxConcurrentRows)
	assert.Equal(t, 60, cfg.Monitor.SweepIntervalSecs)
	assert.Equal(t, 30, cfg.Monitor.IdleThresholdMins)
	assert.Equal(t, 5, cfg.Monitor.StalledThreshold)
	assert.Equal(t, 20, cfg.Monitor.BacklogThreshold)
	assert.Empty(t, cfg.Monitor.WebhookURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/onboard
log:
  level: debug
  format: console
server:
  port: 9090
session:
  max_attempts: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/onboard", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Session.MaxAttempts)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.7, cfg.Session.ConfidenceThreshold, 0.001)
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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ONBOARD_STORE_DRIVER", "postgres")
	t.Setenv("ONBOARD_LOG_LEVEL", "warn")

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

	t.Setenv("ONBOARD_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
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
	cfg.Session.MaxAttempts = 2
	cfg.Session.ConfidenceThreshold = 0.7
	cfg.Session.AutoCompleteRiskBelow = 50.0
	cfg.Oracle.RatePerSec = 2.0
	cfg.Bulk.MaxConcurrentRows = 8
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateSession_RequiresKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("session")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("session"))
}

func TestValidateImport_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Bulk.MaxConcurrentRows = 0
	err := cfg.Validate("import")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_rows must be between 1 and 50")

	cfg.Bulk.MaxConcurrentRows = 51
	err = cfg.Validate("import")
	assert.Error(t, err)

	cfg.Bulk.MaxConcurrentRows = 50
	assert.NoError(t, cfg.Validate("import"))
}

func TestValidateReview_NeedsASink(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("review")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "review sync needs")

	cfg.Notion.Token = "ntn_token"
	cfg.Notion.ReviewDB = "review-db-id"
	assert.NoError(t, cfg.Validate("review"))

	cfg.Notion.Token = ""
	cfg.Salesforce.ClientID = "client-id"
	assert.NoError(t, cfg.Validate("review"))
}

func TestValidateAttemptBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Session.MaxAttempts = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts must be between 1 and 10")

	cfg.Session.MaxAttempts = 11
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Session.MaxAttempts = 2
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateConfidenceThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Session.ConfidenceThreshold = -0.1
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_threshold")

	cfg.Session.ConfidenceThreshold = 1.1
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Session.ConfidenceThreshold = 0.7
	cfg.Session.AutoCompleteRiskBelow = 150
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auto_complete_risk_below")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateValidateMode(t *testing.T) {
	// Pure local validation needs no credentials at all.
	cfg := &Config{}
	assert.NoError(t, cfg.Validate("validate"))
}
