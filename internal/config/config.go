package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config represents runtime configuration derived from defaults, an optional
// YAML file and environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Sync     SyncConfig
	LeetCode LeetCodeConfig
	Retry    RetryConfig
	Roster   []RosterEntry
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// SyncConfig controls the stats sync scheduler.
type SyncConfig struct {
	StartupDelay time.Duration
	Schedule     string
	LookbackDays int
	Workers      int
	Autostart    bool
	RunRetention time.Duration
}

// Window is the activity lookback window.
func (s SyncConfig) Window() time.Duration {
	return time.Duration(s.LookbackDays) * 24 * time.Hour
}

// LeetCodeConfig configures the stats provider client.
type LeetCodeConfig struct {
	Endpoint      string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
}

// RetryConfig bounds transient failure retries within a cycle.
type RetryConfig struct {
	TransientRetries int
	Backoff          time.Duration
}

// RosterEntry is a tracked account seeded at boot.
type RosterEntry struct {
	Name   string `yaml:"name"`
	Handle string `yaml:"handle"`
}

const (
	configPathEnv = "STATSYNC_CONFIG"

	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultDatabaseDriver = DriverPostgres
	defaultMigrationsDir  = "migrations"
	defaultMaxOpenConns   = 10
	defaultMaxIdleConns   = 4

	defaultStartupDelay = 5 * time.Second
	defaultSchedule     = "@every 24h"
	defaultLookbackDays = 7
	defaultWorkers      = 4
	defaultRunRetention = 30 * 24 * time.Hour

	defaultLeetCodeEndpoint = "https://leetcode.com/graphql"
	defaultLeetCodeTimeout  = 30 * time.Second
	defaultLeetCodeRate     = 2.0

	defaultTransientRetries = 1
	defaultRetryBackoff     = 2 * time.Second
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			Driver:        defaultDatabaseDriver,
			MigrationsDir: defaultMigrationsDir,
			MaxOpenConns:  defaultMaxOpenConns,
			MaxIdleConns:  defaultMaxIdleConns,
		},
		Sync: SyncConfig{
			StartupDelay: defaultStartupDelay,
			Schedule:     defaultSchedule,
			LookbackDays: defaultLookbackDays,
			Workers:      defaultWorkers,
			Autostart:    true,
			RunRetention: defaultRunRetention,
		},
		LeetCode: LeetCodeConfig{
			Endpoint:      defaultLeetCodeEndpoint,
			Timeout:       defaultLeetCodeTimeout,
			RatePerSecond: defaultLeetCodeRate,
		},
		Retry: RetryConfig{
			TransientRetries: defaultTransientRetries,
			Backoff:          defaultRetryBackoff,
		},
	}
}

// Load reads configuration, applying defaults when values are not provided.
// Precedence from lowest to highest: defaults, the YAML file named by
// STATSYNC_CONFIG, environment variables (including a local .env file).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Port = port
	} else if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"SYNC_STARTUP_DELAY_SECONDS", &cfg.Sync.StartupDelay},
		{"LEETCODE_TIMEOUT_SECONDS", &cfg.LeetCode.Timeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := parseSeconds(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.target = parsed
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"SYNC_LOOKBACK_DAYS", &cfg.Sync.LookbackDays},
		{"SYNC_WORKERS", &cfg.Sync.Workers},
		{"SYNC_TRANSIENT_RETRIES", &cfg.Retry.TransientRetries},
		{"DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			parsed, err := parseNonNegativeInt(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", i.key, err)
			}
			*i.target = parsed
		}
	}

	if v := os.Getenv("SYNC_RETRY_BACKOFF_MS"); v != "" {
		ms, err := parseNonNegativeInt(v)
		if err != nil {
			return fmt.Errorf("invalid SYNC_RETRY_BACKOFF_MS: %w", err)
		}
		cfg.Retry.Backoff = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("SYNC_RUN_RETENTION_DAYS"); v != "" {
		days, err := parseNonNegativeInt(v)
		if err != nil {
			return fmt.Errorf("invalid SYNC_RUN_RETENTION_DAYS: %w", err)
		}
		cfg.Sync.RunRetention = time.Duration(days) * 24 * time.Hour
	}

	if v := os.Getenv("SYNC_AUTOSTART"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SYNC_AUTOSTART: must be a boolean")
		}
		cfg.Sync.Autostart = enabled
	}

	if v := os.Getenv("LEETCODE_RATE_PER_SECOND"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 {
			return fmt.Errorf("invalid LEETCODE_RATE_PER_SECOND: must be a non-negative number")
		}
		cfg.LeetCode.RatePerSecond = rate
	}

	cfg.Sync.Schedule = getEnv("SYNC_SCHEDULE", cfg.Sync.Schedule)
	cfg.LeetCode.Endpoint = getEnv("LEETCODE_ENDPOINT", cfg.LeetCode.Endpoint)
	cfg.LeetCode.UserAgent = getEnv("LEETCODE_USER_AGENT", cfg.LeetCode.UserAgent)

	cfg.Database.Driver = getEnv("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.InstanceConnectionName = getEnv("INSTANCE_CONNECTION_NAME", cfg.Database.InstanceConnectionName)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.Database.MigrationsDir)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return nil
}

// Validate checks cross-field constraints after all sources are applied.
func (c Config) Validate() error {
	var errs []error

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'"))
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid DATABASE_DRIVER %q: must be %q or %q", c.Database.Driver, DriverPostgres, DriverMemory))
	}

	if c.Sync.LookbackDays < 1 {
		errs = append(errs, fmt.Errorf("invalid SYNC_LOOKBACK_DAYS: must be at least 1"))
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, fmt.Errorf("invalid SYNC_WORKERS: must be at least 1"))
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", c.Sync.Schedule, err))
	}
	if c.LeetCode.Endpoint == "" {
		errs = append(errs, fmt.Errorf("LEETCODE_ENDPOINT must not be empty"))
	}

	seen := make(map[string]struct{}, len(c.Roster))
	for i, entry := range c.Roster {
		handle := strings.TrimSpace(entry.Handle)
		if handle == "" {
			errs = append(errs, fmt.Errorf("roster entry %d: handle is required", i))
			continue
		}
		if _, dup := seen[handle]; dup {
			errs = append(errs, fmt.Errorf("roster entry %d: duplicate handle %q", i, handle))
		}
		seen[handle] = struct{}{}
	}

	return errors.Join(errs...)
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseNonNegativeInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
