package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetboard/statsync/internal/database"
	"github.com/leetboard/statsync/internal/leetcode"
	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/retry"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]fetchResult
	calls     map[string]int
	inFlight  int
	maxFlight int
	delay     time.Duration
}

type fetchResult struct {
	stats *leetcode.Stats
	err   error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string][]fetchResult),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) script(handle string, results ...fetchResult) {
	f.responses[handle] = results
}

func (f *fakeFetcher) FetchStats(ctx context.Context, handle string) (*leetcode.Stats, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	n := f.calls[handle]
	f.calls[handle]++
	results := f.responses[handle]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if len(results) == 0 {
		return nil, &leetcode.FetchError{Kind: leetcode.KindNotFound, Handle: handle, Err: errors.New("unscripted")}
	}
	if n >= len(results) {
		n = len(results) - 1
	}
	return results[n].stats, results[n].err
}

func (f *fakeFetcher) callCount(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[handle]
}

func ok(easy, medium, hard int, calendar *string) fetchResult {
	return fetchResult{stats: &leetcode.Stats{
		Solved:             models.TierCounts{Easy: easy, Medium: medium, Hard: hard},
		SubmissionCalendar: calendar,
	}}
}

func fail(kind leetcode.Kind) fetchResult {
	return fetchResult{err: &leetcode.FetchError{Kind: kind, Handle: "x", Err: errors.New(string(kind))}}
}

func strPtr(s string) *string { return &s }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Workers: 2,
		Window:  7 * 24 * time.Hour,
		Retry: retry.Policy{
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			BackoffFactor:  2,
		},
	}
}

func seedRoster(t *testing.T, store *database.MemoryStore, handles ...string) []*models.TrackedAccount {
	t.Helper()
	accounts := make([]*models.TrackedAccount, 0, len(handles))
	for _, h := range handles {
		a := &models.TrackedAccount{Name: "user " + h, Handle: h}
		require.NoError(t, store.Upsert(context.Background(), a))
		accounts = append(accounts, a)
	}
	return accounts
}

func TestSyncAllIsolatesTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "alice", "bob", "carol")

	now := time.Unix(1_700_000_000, 0)
	recent := strPtr(`{"1699990000": 3}`)

	fetcher := newFakeFetcher()
	fetcher.script("alice", ok(10, 5, 1, recent))
	fetcher.script("bob", fail(leetcode.KindTransient))
	fetcher.script("carol", ok(1, 0, 0, nil))

	s := NewSynchronizer(store, fetcher, testConfig(), testLogger())
	s.now = func() time.Time { return now }

	report, err := s.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 1, report.Failed())

	// outcomes follow roster order
	for i, a := range accounts {
		assert.Equal(t, a.ID, report.Outcomes[i].AccountID)
	}

	bob := report.Outcomes[1]
	assert.False(t, bob.Success)
	assert.Equal(t, models.OutcomeTransient, bob.Kind)
	assert.Equal(t, 2, bob.Attempts)
	assert.Equal(t, 2, fetcher.callCount("bob"))

	alice, err := store.GetSnapshot(ctx, accounts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, 23, alice.Score)
	assert.True(t, alice.IsActive)
	assert.Equal(t, now, alice.LastUpdated)

	bobSnap, err := store.GetSnapshot(ctx, accounts[1].ID)
	require.NoError(t, err)
	assert.Nil(t, bobSnap)

	carol, err := store.GetSnapshot(ctx, accounts[2].ID)
	require.NoError(t, err)
	require.NotNil(t, carol)
	assert.Equal(t, 1, carol.Score)
	assert.False(t, carol.IsActive)
	assert.Nil(t, carol.SubmissionCalendar)
}

func TestSyncAllTransientRecoversOnRetry(t *testing.T) {
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "alice")

	fetcher := newFakeFetcher()
	fetcher.script("alice", fail(leetcode.KindTransient), ok(0, 1, 0, nil))

	s := NewSynchronizer(store, fetcher, testConfig(), testLogger())
	report, err := s.SyncAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].Success)
	assert.Equal(t, 2, report.Outcomes[0].Attempts)

	snap, err := store.GetSnapshot(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Score)
}

func TestSyncAllDoesNotRetryTerminalFailures(t *testing.T) {
	tests := []struct {
		name string
		kind leetcode.Kind
		want models.OutcomeKind
	}{
		{"not found", leetcode.KindNotFound, models.OutcomeNotFound},
		{"protocol", leetcode.KindProtocol, models.OutcomeProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := database.NewMemoryStore()
			seedRoster(t, store, "ghost")

			fetcher := newFakeFetcher()
			fetcher.script("ghost", fail(tt.kind))

			s := NewSynchronizer(store, fetcher, testConfig(), testLogger())
			report, err := s.SyncAll(context.Background())
			require.NoError(t, err)

			require.Len(t, report.Outcomes, 1)
			assert.Equal(t, tt.want, report.Outcomes[0].Kind)
			assert.Equal(t, 1, report.Outcomes[0].Attempts)
			assert.Equal(t, 1, fetcher.callCount("ghost"))
		})
	}
}

func TestSyncAllPreservesPriorSnapshotOnFailure(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "alice")

	prior := models.StatsSnapshot{
		Solved:      models.TierCounts{Easy: 4},
		Score:       4,
		LastUpdated: time.Unix(1_600_000_000, 0),
	}
	require.NoError(t, store.ReplaceSnapshot(ctx, accounts[0].ID, prior))

	fetcher := newFakeFetcher()
	fetcher.script("alice", fail(leetcode.KindProtocol))

	s := NewSynchronizer(store, fetcher, testConfig(), testLogger())
	_, err := s.SyncAll(ctx)
	require.NoError(t, err)

	snap, err := store.GetSnapshot(ctx, accounts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.Score)
	assert.Equal(t, prior.LastUpdated, snap.LastUpdated)
}

func TestSyncAllEmptyRoster(t *testing.T) {
	s := NewSynchronizer(database.NewMemoryStore(), newFakeFetcher(), testConfig(), testLogger())

	report, err := s.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 0, report.Failed())
}

func TestSyncAllBoundsConcurrency(t *testing.T) {
	store := database.NewMemoryStore()
	handles := []string{"a", "b", "c", "d", "e", "f"}
	seedRoster(t, store, handles...)

	fetcher := newFakeFetcher()
	fetcher.delay = 10 * time.Millisecond
	for _, h := range handles {
		fetcher.script(h, ok(1, 1, 1, nil))
	}

	cfg := testConfig()
	cfg.Workers = 2
	s := NewSynchronizer(store, fetcher, cfg, testLogger())

	report, err := s.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(handles), report.Succeeded())
	assert.LessOrEqual(t, fetcher.maxFlight, 2)
}

type failingRoster struct {
	*database.MemoryStore
}

func (failingRoster) ListRoster(ctx context.Context) ([]*models.TrackedAccount, error) {
	return nil, errors.New("connection refused")
}

func TestSyncAllRosterReadFailure(t *testing.T) {
	s := NewSynchronizer(failingRoster{database.NewMemoryStore()}, newFakeFetcher(), testConfig(), testLogger())

	_, err := s.SyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read roster")
}

type failingWrites struct {
	*database.MemoryStore
}

func (failingWrites) ReplaceSnapshot(ctx context.Context, accountID string, snapshot models.StatsSnapshot) error {
	return errors.New("disk full")
}

func TestSyncAllStoreFailure(t *testing.T) {
	store := failingWrites{database.NewMemoryStore()}
	seedRoster(t, store.MemoryStore, "alice")

	fetcher := newFakeFetcher()
	fetcher.script("alice", ok(1, 0, 0, nil))

	s := NewSynchronizer(store, fetcher, testConfig(), testLogger())
	report, err := s.SyncAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.False(t, report.Outcomes[0].Success)
	assert.Equal(t, models.OutcomeStore, report.Outcomes[0].Kind)
}

type panickingFetcher struct{}

func (panickingFetcher) FetchStats(ctx context.Context, handle string) (*leetcode.Stats, error) {
	panic("boom")
}

func TestSyncAllRecoversPanics(t *testing.T) {
	store := database.NewMemoryStore()
	seedRoster(t, store, "alice", "bob")

	s := NewSynchronizer(store, panickingFetcher{}, testConfig(), testLogger())
	report, err := s.SyncAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, models.OutcomeInternal, o.Kind)
	}
}

func TestSyncAccount(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "alice")

	fetcher := newFakeFetcher()
	fetcher.script("alice", ok(2, 2, 2, nil))

	s := NewSynchronizer(store, fetcher, testConfig(), testLogger())

	outcome, err := s.SyncAccount(ctx, accounts[0].ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.NotNil(t, outcome.Snapshot)
	assert.Equal(t, 12, outcome.Snapshot.Score)

	_, err = s.SyncAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
