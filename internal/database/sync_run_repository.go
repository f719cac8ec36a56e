package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/leetboard/statsync/internal/models"
)

// SyncRunRepository stores cycle summaries.
type SyncRunRepository struct {
	db *sql.DB
}

var _ models.SyncRunRepository = (*SyncRunRepository)(nil)

// NewSyncRunRepository creates a new sync run repository.
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

type syncRunDetails struct {
	FailuresByKind map[string]int `json:"failures_by_kind,omitempty"`
	Inactive       []string       `json:"inactive"`
}

// Record stores a cycle summary.
func (r *SyncRunRepository) Record(ctx context.Context, run models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	details, err := json.Marshal(syncRunDetails{FailuresByKind: run.FailuresByKind, Inactive: run.Inactive})
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	query := `
		INSERT INTO sync_runs (id, trigger, started_at, finished_at, roster_size, succeeded, failed, inactive_count, error, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Trigger,
		run.StartedAt,
		run.FinishedAt,
		run.RosterSize,
		run.Succeeded,
		run.Failed,
		len(run.Inactive),
		run.Error,
		details,
	)
	if err != nil {
		return fmt.Errorf("record sync run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent summaries first.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, trigger, started_at, finished_at, roster_size, succeeded, failed, error, details
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		var run models.SyncRun
		var detailsJSON []byte

		err := rows.Scan(
			&run.ID,
			&run.Trigger,
			&run.StartedAt,
			&run.FinishedAt,
			&run.RosterSize,
			&run.Succeeded,
			&run.Failed,
			&run.Error,
			&detailsJSON,
		)
		if err != nil {
			return nil, err
		}

		if len(detailsJSON) > 0 {
			var details syncRunDetails
			if err := json.Unmarshal(detailsJSON, &details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
			run.FailuresByKind = details.FailuresByKind
			run.Inactive = details.Inactive
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// DeleteOlderThan prunes summaries older than age.
func (r *SyncRunRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	query := `DELETE FROM sync_runs WHERE started_at < $1`

	result, err := r.db.ExecContext(ctx, query, time.Now().Add(-age))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}
