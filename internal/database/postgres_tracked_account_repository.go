package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/stats"
)

// ErrAccountNotFound is returned when a write targets an unknown account.
var ErrAccountNotFound = errors.New("tracked account not found")

type PostgresTrackedAccountRepository struct {
	db *sql.DB
}

var _ models.TrackedAccountRepository = (*PostgresTrackedAccountRepository)(nil)

func NewPostgresTrackedAccountRepository(db *sql.DB) *PostgresTrackedAccountRepository {
	return &PostgresTrackedAccountRepository{db: db}
}

const accountColumns = `
	id, name, handle, easy_solved, medium_solved, hard_solved, score,
	submission_calendar, last_updated, is_active, created_at, updated_at`

// Upsert registers an account by handle. Existing rows keep their snapshot.
func (r *PostgresTrackedAccountRepository) Upsert(ctx context.Context, account *models.TrackedAccount) error {
	query := `
		INSERT INTO tracked_accounts (name, handle)
		VALUES ($1, $2)
		ON CONFLICT (handle)
		DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, account.Name, account.Handle).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tracked account %s: %w", account.Handle, err)
	}
	return nil
}

// GetByID returns nil for unknown ids, including ones that are not UUIDs.
func (r *PostgresTrackedAccountRepository) GetByID(ctx context.Context, id string) (*models.TrackedAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `SELECT ` + accountColumns + ` FROM tracked_accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked account %s: %w", id, err)
	}
	return account, nil
}

// ListRoster returns accounts in registration order.
func (r *PostgresTrackedAccountRepository) ListRoster(ctx context.Context) ([]*models.TrackedAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM tracked_accounts ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	var accounts []*models.TrackedAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return accounts, nil
}

func (r *PostgresTrackedAccountRepository) GetSnapshot(ctx context.Context, accountID string) (*models.StatsSnapshot, error) {
	account, err := r.GetByID(ctx, accountID)
	if err != nil || account == nil {
		return nil, err
	}
	return account.Snapshot, nil
}

// ReplaceSnapshot writes the whole snapshot. The score column is recomputed
// from the tier counts so it can never drift from them.
func (r *PostgresTrackedAccountRepository) ReplaceSnapshot(ctx context.Context, accountID string, snapshot models.StatsSnapshot) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", accountID, ErrAccountNotFound)
	}

	query := `
		UPDATE tracked_accounts SET
			easy_solved = $2,
			medium_solved = $3,
			hard_solved = $4,
			score = $5,
			submission_calendar = $6,
			last_updated = $7,
			is_active = $8,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		accountID,
		snapshot.Solved.Easy,
		snapshot.Solved.Medium,
		snapshot.Solved.Hard,
		stats.ScoreOf(snapshot.Solved),
		snapshot.SubmissionCalendar,
		snapshot.LastUpdated,
		snapshot.IsActive,
	)
	if err != nil {
		return fmt.Errorf("replace snapshot %s: %w", accountID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace snapshot %s: %w", accountID, err)
	}
	if affected == 0 {
		return fmt.Errorf("replace snapshot %s: %w", accountID, ErrAccountNotFound)
	}
	return nil
}

func (r *PostgresTrackedAccountRepository) Ping(ctx context.Context) error {
	return HealthCheck(ctx, r.db)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.TrackedAccount, error) {
	var (
		account     models.TrackedAccount
		solved      models.TierCounts
		score       int
		calendar    sql.NullString
		lastUpdated sql.NullTime
		isActive    bool
	)

	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Handle,
		&solved.Easy,
		&solved.Medium,
		&solved.Hard,
		&score,
		&calendar,
		&lastUpdated,
		&isActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// no snapshot until the first successful fetch
	if lastUpdated.Valid {
		snapshot := &models.StatsSnapshot{
			Solved:      solved,
			Score:       score,
			LastUpdated: lastUpdated.Time,
			IsActive:    isActive,
		}
		if calendar.Valid {
			raw := calendar.String
			snapshot.SubmissionCalendar = &raw
		}
		account.Snapshot = snapshot
	}

	return &account, nil
}
