package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/stats"
)

// Scanner derives the inactive subset of the roster from stored snapshots.
// It never trusts the stored activity flag.
type Scanner struct {
	repo   models.TrackedAccountRepository
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewScanner creates an inactivity scanner.
func NewScanner(repo models.TrackedAccountRepository, window time.Duration, logger *slog.Logger) *Scanner {
	if window <= 0 {
		window = stats.DefaultWindow
	}
	return &Scanner{repo: repo, window: window, logger: logger, now: time.Now}
}

// InactiveAccounts returns the currently inactive accounts in roster order.
func (s *Scanner) InactiveAccounts(ctx context.Context) ([]*models.TrackedAccount, error) {
	roster, err := s.repo.ListRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	now := s.now()
	inactive := make([]*models.TrackedAccount, 0)
	for _, account := range roster {
		if stats.ClassifySnapshot(account.Snapshot, now, s.window) != stats.Inactive {
			continue
		}
		inactive = append(inactive, account)

		attrs := []any{"handle", account.Handle}
		if account.Snapshot != nil {
			if last, ok := stats.LastActivity(account.Snapshot.SubmissionCalendar); ok {
				attrs = append(attrs, "last_activity", last.UTC())
			}
		}
		s.logger.Debug("account inactive", attrs...)
	}

	s.logger.Debug("inactivity scan completed", "accounts", len(roster), "inactive", len(inactive))
	return inactive, nil
}
