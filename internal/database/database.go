package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// connections kept aside for HTTP handlers and the inactivity scan
const reservedConnections = 2

// Config holds database connection configuration.
type Config struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration

	// SyncWorkers is the synchronizer's worker count. Each worker writes
	// its snapshot on its own connection.
	SyncWorkers int
}

// DefaultConfig returns sensible defaults for database configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     10,
		MaxIdleConnections: 4,
		ConnMaxLifetime:    5 * time.Minute,
		ConnectTimeout:     10 * time.Second,
	}
}

// PoolSize returns the open and idle limits for cfg. The open limit never
// drops below what the sync workers need, and idle never exceeds open.
func PoolSize(cfg Config) (open, idle int) {
	open = cfg.MaxConnections
	if need := cfg.SyncWorkers + reservedConnections; cfg.SyncWorkers > 0 && open < need {
		open = need
	}
	idle = cfg.MaxIdleConnections
	if idle < cfg.SyncWorkers {
		idle = cfg.SyncWorkers
	}
	if open > 0 && idle > open {
		idle = open
	}
	return open, idle
}

// Connect opens the pool and waits for the database to answer, retrying the
// first ping until ConnectTimeout since Cloud SQL sockets can lag startup.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	open, idle := PoolSize(cfg)
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = 250 * time.Millisecond
	delays.MaxInterval = 2 * time.Second

	_, err = backoff.Retry(pingCtx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(pingCtx)
	}, backoff.WithBackOff(delays), backoff.WithMaxElapsedTime(cfg.ConnectTimeout))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// HealthCheck performs a database health check.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected health check result: %d", result)
	}
	return nil
}

// Stats returns connection pool statistics for the startup log.
func Stats(db *sql.DB) map[string]any {
	stats := db.Stats()
	return map[string]any{
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"in_use":   stats.InUse,
		"idle":     stats.Idle,
	}
}
