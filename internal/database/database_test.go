package database

import (
	"context"
	"testing"
	"time"
)

func TestPoolSize(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantOpen int
		wantIdle int
	}{
		{"defaults without workers", DefaultConfig(), 10, 4},
		{"workers fit in configured pool", Config{MaxConnections: 10, MaxIdleConnections: 4, SyncWorkers: 4}, 10, 4},
		{"workers raise open limit", Config{MaxConnections: 4, MaxIdleConnections: 2, SyncWorkers: 8}, 10, 8},
		{"idle clamped to open", Config{MaxConnections: 3, MaxIdleConnections: 6}, 3, 3},
		{"unlimited open keeps idle", Config{MaxConnections: 0, MaxIdleConnections: 5}, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, idle := PoolSize(tt.cfg)
			if open != tt.wantOpen || idle != tt.wantIdle {
				t.Errorf("PoolSize() = (%d, %d), want (%d, %d)", open, idle, tt.wantOpen, tt.wantIdle)
			}
		})
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), DefaultConfig()); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestConnectGivesUpAfterTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://statsync@127.0.0.1:1/statsync?sslmode=disable&connect_timeout=1"
	cfg.ConnectTimeout = 300 * time.Millisecond

	start := time.Now()
	db, err := Connect(context.Background(), cfg)
	if err == nil {
		db.Close()
		t.Fatal("expected error for unreachable database")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("expected Connect to stop near ConnectTimeout, took %v", elapsed)
	}
}
