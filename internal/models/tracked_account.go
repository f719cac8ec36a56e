package models

import (
	"context"
	"time"
)

// TierCounts holds solved problem counts per difficulty tier.
type TierCounts struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// StatsSnapshot is the latest known stats record for one tracked account.
// It is replaced as a whole on every successful fetch.
type StatsSnapshot struct {
	Solved             TierCounts `json:"solved"`
	Score              int        `json:"score"`
	SubmissionCalendar *string    `json:"submission_calendar,omitempty"` // raw provider payload, nil when never fetched
	LastUpdated        time.Time  `json:"last_updated"`
	IsActive           bool       `json:"is_active"`
}

// TrackedAccount represents an external LeetCode identity whose progress is monitored
type TrackedAccount struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Handle    string         `json:"handle"` // LeetCode username
	Snapshot  *StatsSnapshot `json:"snapshot,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TrackedAccountRepository is the persistence boundary used by the sync subsystem.
type TrackedAccountRepository interface {
	// ListRoster returns every tracked account with its stored snapshot, in roster order
	ListRoster(ctx context.Context) ([]*TrackedAccount, error)

	// GetSnapshot returns the stored snapshot for an account, or nil when none has been written
	GetSnapshot(ctx context.Context, accountID string) (*StatsSnapshot, error)

	// ReplaceSnapshot overwrites the account's snapshot in a single write
	ReplaceSnapshot(ctx context.Context, accountID string, snapshot StatsSnapshot) error

	// GetByID retrieves an account by ID, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*TrackedAccount, error)

	// Upsert registers an account by handle, updating the display name when it already exists
	Upsert(ctx context.Context, account *TrackedAccount) error

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error
}
