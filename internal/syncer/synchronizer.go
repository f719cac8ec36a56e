// Package syncer refreshes tracked account snapshots from the stats provider
// and derives the inactive set from stored snapshots.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/leetboard/statsync/internal/leetcode"
	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/retry"
	"github.com/leetboard/statsync/internal/stats"
)

// ErrAccountNotFound is returned by SyncAccount for an unknown account id.
var ErrAccountNotFound = errors.New("tracked account not found")

// StatsFetcher is the external stats provider boundary.
type StatsFetcher interface {
	FetchStats(ctx context.Context, handle string) (*leetcode.Stats, error)
}

// Config tunes a synchronizer.
type Config struct {
	Workers int
	Window  time.Duration
	Retry   retry.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Workers: 4,
		Window:  stats.DefaultWindow,
		Retry:   retry.DefaultPolicy(),
	}
}

// Synchronizer runs one fetch+write pass over the roster.
type Synchronizer struct {
	repo    models.TrackedAccountRepository
	fetcher StatsFetcher
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(repo models.TrackedAccountRepository, fetcher StatsFetcher, cfg Config, logger *slog.Logger) *Synchronizer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = stats.DefaultWindow
	}
	return &Synchronizer{
		repo:    repo,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SyncAll attempts exactly one fetch+write per roster entry. Per-account
// failures are reported in the outcome list; only a roster read failure is
// returned as an error.
func (s *Synchronizer) SyncAll(ctx context.Context) (models.BatchReport, error) {
	report := models.BatchReport{StartedAt: s.now()}

	roster, err := s.repo.ListRoster(ctx)
	if err != nil {
		return report, fmt.Errorf("read roster: %w", err)
	}

	s.logger.Info("starting stats sync", "accounts", len(roster), "workers", s.cfg.Workers)

	outcomes := make([]models.BatchOutcome, len(roster))
	p := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for i, account := range roster {
		p.Go(func() {
			outcomes[i] = s.syncOne(ctx, account)
		})
	}
	p.Wait()

	report.Outcomes = outcomes
	report.FinishedAt = s.now()

	s.logger.Info("stats sync completed",
		"accounts", len(roster),
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	return report, nil
}

// SyncAccount refreshes a single account through the same path as SyncAll.
func (s *Synchronizer) SyncAccount(ctx context.Context, accountID string) (models.BatchOutcome, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return models.BatchOutcome{}, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return models.BatchOutcome{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return s.syncOne(ctx, account), nil
}

func (s *Synchronizer) syncOne(ctx context.Context, account *models.TrackedAccount) (outcome models.BatchOutcome) {
	outcome = models.BatchOutcome{AccountID: account.ID, Handle: account.Handle}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while syncing account", "account_id", account.ID, "handle", account.Handle, "panic", r)
			outcome.Success = false
			outcome.Snapshot = nil
			outcome.Kind = models.OutcomeInternal
			outcome.Error = fmt.Sprint(r)
		}
	}()

	var fetched *leetcode.Stats
	attempts, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var fetchErr error
		fetched, fetchErr = s.fetcher.FetchStats(ctx, account.Handle)
		return fetchErr
	})
	outcome.Attempts = attempts

	if err != nil {
		outcome.Kind = failureKind(err)
		outcome.Error = err.Error()
		s.logFailure(account, outcome)
		return outcome
	}

	snapshot := stats.NewSnapshot(fetched.Solved, fetched.SubmissionCalendar, s.now(), s.cfg.Window)
	if err := s.repo.ReplaceSnapshot(ctx, account.ID, snapshot); err != nil {
		outcome.Kind = models.OutcomeStore
		outcome.Error = err.Error()
		s.logFailure(account, outcome)
		return outcome
	}

	outcome.Success = true
	outcome.Snapshot = &snapshot

	s.logger.Debug("updated account stats",
		"account_id", account.ID,
		"handle", account.Handle,
		"score", snapshot.Score,
		"active", snapshot.IsActive,
		"attempts", attempts,
	)
	return outcome
}

func (s *Synchronizer) logFailure(account *models.TrackedAccount, outcome models.BatchOutcome) {
	attrs := []any{
		"account_id", account.ID,
		"handle", account.Handle,
		"kind", outcome.Kind,
		"attempts", outcome.Attempts,
		"error", outcome.Error,
	}

	// protocol errors usually mean the provider changed its contract and
	// every account is about to fail the same way
	if outcome.Kind == models.OutcomeProtocol {
		s.logger.Error("stats provider contract violation", attrs...)
		return
	}
	s.logger.Warn("failed to sync account stats", attrs...)
}

func failureKind(err error) models.OutcomeKind {
	var fetchErr *leetcode.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.OutcomeKind()
	}
	return models.OutcomeTransient
}
