package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML layout. Pointer fields distinguish an explicit
// zero from an omitted key.
type fileConfig struct {
	Server struct {
		Port                   string `yaml:"port"`
		ReadTimeoutSeconds     *int   `yaml:"readTimeoutSeconds"`
		WriteTimeoutSeconds    *int   `yaml:"writeTimeoutSeconds"`
		ShutdownTimeoutSeconds *int   `yaml:"shutdownTimeoutSeconds"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Database struct {
		Driver        string `yaml:"driver"`
		URL           string `yaml:"url"`
		MigrationsDir string `yaml:"migrationsDir"`
		MaxOpenConns  *int   `yaml:"maxOpenConns"`
		MaxIdleConns  *int   `yaml:"maxIdleConns"`
	} `yaml:"database"`
	Sync struct {
		StartupDelaySeconds *int   `yaml:"startupDelaySeconds"`
		Schedule            string `yaml:"schedule"`
		LookbackDays        *int   `yaml:"lookbackDays"`
		Workers             *int   `yaml:"workers"`
		Autostart           *bool  `yaml:"autostart"`
		RunRetentionDays    *int   `yaml:"runRetentionDays"`
	} `yaml:"sync"`
	LeetCode struct {
		Endpoint       string   `yaml:"endpoint"`
		UserAgent      string   `yaml:"userAgent"`
		TimeoutSeconds *int     `yaml:"timeoutSeconds"`
		RatePerSecond  *float64 `yaml:"ratePerSecond"`
	} `yaml:"leetcode"`
	Retry struct {
		TransientRetries *int `yaml:"transientRetries"`
		BackoffMs        *int `yaml:"backoffMs"`
	} `yaml:"retry"`
	Roster []RosterEntry `yaml:"roster"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.Server.Port, fc.Server.Port)
	setSeconds(&cfg.Server.ReadTimeout, fc.Server.ReadTimeoutSeconds)
	setSeconds(&cfg.Server.WriteTimeout, fc.Server.WriteTimeoutSeconds)
	setSeconds(&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeoutSeconds)

	if fc.Logging.Level != "" {
		level, err := parseLogLevel(fc.Logging.Level)
		if err != nil {
			return fmt.Errorf("config file logging.level: %w", err)
		}
		cfg.Logging.Level = level
	}
	setString(&cfg.Logging.Format, fc.Logging.Format)

	setString(&cfg.Database.Driver, fc.Database.Driver)
	setString(&cfg.Database.URL, fc.Database.URL)
	setString(&cfg.Database.MigrationsDir, fc.Database.MigrationsDir)
	setInt(&cfg.Database.MaxOpenConns, fc.Database.MaxOpenConns)
	setInt(&cfg.Database.MaxIdleConns, fc.Database.MaxIdleConns)

	setSeconds(&cfg.Sync.StartupDelay, fc.Sync.StartupDelaySeconds)
	setString(&cfg.Sync.Schedule, fc.Sync.Schedule)
	setInt(&cfg.Sync.LookbackDays, fc.Sync.LookbackDays)
	setInt(&cfg.Sync.Workers, fc.Sync.Workers)
	if fc.Sync.Autostart != nil {
		cfg.Sync.Autostart = *fc.Sync.Autostart
	}
	if fc.Sync.RunRetentionDays != nil {
		cfg.Sync.RunRetention = time.Duration(*fc.Sync.RunRetentionDays) * 24 * time.Hour
	}

	setString(&cfg.LeetCode.Endpoint, fc.LeetCode.Endpoint)
	setString(&cfg.LeetCode.UserAgent, fc.LeetCode.UserAgent)
	setSeconds(&cfg.LeetCode.Timeout, fc.LeetCode.TimeoutSeconds)
	if fc.LeetCode.RatePerSecond != nil {
		cfg.LeetCode.RatePerSecond = *fc.LeetCode.RatePerSecond
	}

	setInt(&cfg.Retry.TransientRetries, fc.Retry.TransientRetries)
	if fc.Retry.BackoffMs != nil {
		cfg.Retry.Backoff = time.Duration(*fc.Retry.BackoffMs) * time.Millisecond
	}

	cfg.Roster = append(cfg.Roster, fc.Roster...)
	return nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

func setSeconds(target *time.Duration, value *int) {
	if value != nil {
		*target = time.Duration(*value) * time.Second
	}
}
