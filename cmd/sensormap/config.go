package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	ComposeFile string        `mapstructure:"compose_file"`
	DataDir     string        `mapstructure:"data_dir"`
	Docker      DockerConfig  `mapstructure:"docker"`
	Service     ServiceConfig `mapstructure:"service"`
	Store       StoreConfig   `mapstructure:"store"`
	Log         LogConfig     `mapstructure:"log"`
	Watch       WatchConfig   `mapstructure:"watch"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// ServiceConfig describes how the deployed service is reached.
type ServiceConfig struct {
	// Host is the hostname the printed URL points at.
	Host string `mapstructure:"host"`

	// BasePath is the URL prefix the app serves under.
	BasePath string `mapstructure:"base_path"`

	// HealthWaitTimeout bounds the post-start wait for a healthy stack.
	// Zero disables the wait.
	HealthWaitTimeout time.Duration `mapstructure:"health_wait_timeout"`

	// HealthPollInterval is the poll cadence during the wait.
	HealthPollInterval time.Duration `mapstructure:"health_poll_interval"`

	// StopTimeout is the grace period for stopping containers.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// StoreConfig holds deploy-history configuration.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig holds watch-mode configuration.
type WatchConfig struct {
	// Interval is the time between health probes.
	Interval time.Duration `mapstructure:"interval"`

	// ProbeTimeout bounds a single probe request.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// FailureThreshold is the consecutive-failure count that triggers
	// a restart.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// AdminAddr is the listen address for /healthz, /status, /metrics.
	AdminAddr string `mapstructure:"admin_addr"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("compose_file", "docker-compose.yml")
	v.SetDefault("data_dir", "data/interim")
	v.SetDefault("docker.host", "")
	v.SetDefault("service.host", "localhost")
	v.SetDefault("service.base_path", "/sensor-map")
	v.SetDefault("service.health_wait_timeout", "120s")
	v.SetDefault("service.health_poll_interval", "5s")
	v.SetDefault("service.stop_timeout", "10s")
	v.SetDefault("store.dsn", "./data/deploy-history.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("watch.interval", "60s")
	v.SetDefault("watch.probe_timeout", "5s")
	v.SetDefault("watch.failure_threshold", 3)
	v.SetDefault("watch.admin_addr", ":9090")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a parse error of an explicitly named file is fatal;
			// a missing file falls back to defaults.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SENSORMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to stderr so the crib sheet and status output own stdout.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
