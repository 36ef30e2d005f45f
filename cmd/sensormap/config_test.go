package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "docker-compose.yml", cfg.ComposeFile)
	assert.Equal(t, "data/interim", cfg.DataDir)
	assert.Equal(t, "localhost", cfg.Service.Host)
	assert.Equal(t, "/sensor-map", cfg.Service.BasePath)
	assert.Equal(t, 120*time.Second, cfg.Service.HealthWaitTimeout)
	assert.Equal(t, 5*time.Second, cfg.Service.HealthPollInterval)
	assert.Equal(t, 10*time.Second, cfg.Service.StopTimeout)
	assert.Equal(t, "./data/deploy-history.db", cfg.Store.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 60*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 3, cfg.Watch.FailureThreshold)
	assert.Equal(t, ":9090", cfg.Watch.AdminAddr)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
compose_file: "/srv/sensor-map/docker-compose.yml"
data_dir: "/srv/sensor-map/data/interim"

service:
  host: "sensors.example.fi"
  base_path: "/map"
  health_wait_timeout: 60s
  stop_timeout: 30s

store:
  dsn: "/var/lib/sensormap/history.db"

log:
  level: "debug"
  format: "json"

watch:
  interval: 30s
  failure_threshold: 5
  admin_addr: ":9191"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "/srv/sensor-map/docker-compose.yml", cfg.ComposeFile)
	assert.Equal(t, "/srv/sensor-map/data/interim", cfg.DataDir)
	assert.Equal(t, "sensors.example.fi", cfg.Service.Host)
	assert.Equal(t, "/map", cfg.Service.BasePath)
	assert.Equal(t, 60*time.Second, cfg.Service.HealthWaitTimeout)
	assert.Equal(t, 30*time.Second, cfg.Service.StopTimeout)
	assert.Equal(t, "/var/lib/sensormap/history.db", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 5, cfg.Watch.FailureThreshold)
	assert.Equal(t, ":9191", cfg.Watch.AdminAddr)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("SENSORMAP_DATA_DIR", "/data/interim")
	t.Setenv("SENSORMAP_SERVICE_HOST", "192.168.1.50")
	t.Setenv("SENSORMAP_STORE_DSN", "/custom/history.db")
	t.Setenv("SENSORMAP_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/data/interim", cfg.DataDir)
	assert.Equal(t, "192.168.1.50", cfg.Service.Host)
	assert.Equal(t, "/custom/history.db", cfg.Store.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "docker-compose.yml", cfg.ComposeFile)
	assert.Equal(t, "localhost", cfg.Service.Host)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		cfg := &Config{
			Log: LogConfig{
				Level:  "info",
				Format: format,
			},
		}

		logger := SetupLogger(cfg)
		assert.NotNil(t, logger)
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"SENSORMAP_COMPOSE_FILE",
		"SENSORMAP_DATA_DIR",
		"SENSORMAP_SERVICE_HOST",
		"SENSORMAP_SERVICE_BASE_PATH",
		"SENSORMAP_STORE_DSN",
		"SENSORMAP_LOG_LEVEL",
		"SENSORMAP_LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
