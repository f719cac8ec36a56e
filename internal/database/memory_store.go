package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/stats"
)

// MemoryStore keeps the roster and cycle summaries in process memory. It backs
// DATABASE_DRIVER=memory and the package tests of the sync subsystem.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.TrackedAccount
	order    []string
	runs     []models.SyncRun
	now      func() time.Time
}

var (
	_ models.TrackedAccountRepository = (*MemoryStore)(nil)
	_ models.SyncRunRepository        = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*models.TrackedAccount),
		now:      time.Now,
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, account *models.TrackedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, id := range m.order {
		existing := m.accounts[id]
		if existing.Handle == account.Handle {
			existing.Name = account.Name
			existing.UpdatedAt = now
			account.ID, account.CreatedAt, account.UpdatedAt = existing.ID, existing.CreatedAt, existing.UpdatedAt
			return nil
		}
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt, account.UpdatedAt = now, now

	stored := *account
	stored.Snapshot = copySnapshot(account.Snapshot)
	m.accounts[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*models.TrackedAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return copyAccount(account), nil
}

func (m *MemoryStore) ListRoster(ctx context.Context) ([]*models.TrackedAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	roster := make([]*models.TrackedAccount, 0, len(m.order))
	for _, id := range m.order {
		roster = append(roster, copyAccount(m.accounts[id]))
	}
	return roster, nil
}

func (m *MemoryStore) GetSnapshot(ctx context.Context, accountID string) (*models.StatsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return copySnapshot(account.Snapshot), nil
}

func (m *MemoryStore) ReplaceSnapshot(ctx context.Context, accountID string, snapshot models.StatsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}

	snapshot.Score = stats.ScoreOf(snapshot.Solved)
	account.Snapshot = copySnapshot(&snapshot)
	account.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Record(ctx context.Context, run models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	runs := make([]models.SyncRun, len(m.runs))
	copy(runs, m.runs)
	m.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MemoryStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := m.now().Add(-age)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	var deleted int64
	for _, run := range m.runs {
		if run.StartedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, run)
	}
	m.runs = kept
	return deleted, nil
}

func copyAccount(account *models.TrackedAccount) *models.TrackedAccount {
	c := *account
	c.Snapshot = copySnapshot(account.Snapshot)
	return &c
}

func copySnapshot(snapshot *models.StatsSnapshot) *models.StatsSnapshot {
	if snapshot == nil {
		return nil
	}
	c := *snapshot
	if snapshot.SubmissionCalendar != nil {
		raw := *snapshot.SubmissionCalendar
		c.SubmissionCalendar = &raw
	}
	return &c
}
