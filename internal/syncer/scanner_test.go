package syncer

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetboard/statsync/internal/database"
	"github.com/leetboard/statsync/internal/models"
)

func TestInactiveAccounts(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "fresh", "stale", "zero", "never", "broken")

	now := time.Unix(1_700_000_000, 0)
	snapshots := map[string]models.StatsSnapshot{
		"fresh": {Solved: models.TierCounts{Easy: 1}, SubmissionCalendar: strPtr(`{"1699999000": 1}`)},
		"stale": {Solved: models.TierCounts{Hard: 3}, SubmissionCalendar: strPtr(`{"1600000000": 1}`)},
		// stored flag is ignored; zero score is always inactive
		"zero":   {SubmissionCalendar: strPtr(`{"1699999000": 1}`), IsActive: true},
		"broken": {Solved: models.TierCounts{Easy: 1}, SubmissionCalendar: strPtr(`not json`), IsActive: true},
	}
	for _, a := range accounts {
		if snap, ok := snapshots[a.Handle]; ok {
			snap.LastUpdated = now
			require.NoError(t, store.ReplaceSnapshot(ctx, a.ID, snap))
		}
	}

	scanner := NewScanner(store, 7*24*time.Hour, testLogger())
	scanner.now = func() time.Time { return now }

	inactive, err := scanner.InactiveAccounts(ctx)
	require.NoError(t, err)

	handles := make([]string, 0, len(inactive))
	for _, a := range inactive {
		handles = append(handles, a.Handle)
	}
	assert.Equal(t, []string{"stale", "zero", "never", "broken"}, handles)
}

func TestInactiveAccountsUsesCurrentTime(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "alice")

	require.NoError(t, store.ReplaceSnapshot(ctx, accounts[0].ID, models.StatsSnapshot{
		Solved:             models.TierCounts{Easy: 1},
		SubmissionCalendar: strPtr(`{"1700000000": 1}`),
		IsActive:           true,
	}))

	scanner := NewScanner(store, 7*24*time.Hour, testLogger())

	scanner.now = func() time.Time { return time.Unix(1_700_000_000, 0).Add(24 * time.Hour) }
	inactive, err := scanner.InactiveAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, inactive)

	scanner.now = func() time.Time { return time.Unix(1_700_000_000, 0).Add(8 * 24 * time.Hour) }
	inactive, err = scanner.InactiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "alice", inactive[0].Handle)
}

func TestInactiveAccountsEmptyRoster(t *testing.T) {
	scanner := NewScanner(database.NewMemoryStore(), 0, testLogger())

	inactive, err := scanner.InactiveAccounts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, inactive)
	assert.Empty(t, inactive)
}

func TestInactiveAccountsRosterFailure(t *testing.T) {
	scanner := NewScanner(failingRoster{database.NewMemoryStore()}, 0, testLogger())

	_, err := scanner.InactiveAccounts(context.Background())
	assert.Error(t, err)
}

func TestInactiveAccountsLogsLastActivity(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	accounts := seedRoster(t, store, "stale", "never")

	require.NoError(t, store.ReplaceSnapshot(ctx, accounts[0].ID, models.StatsSnapshot{
		Solved:             models.TierCounts{Medium: 2},
		SubmissionCalendar: strPtr(`{"1600000000": 1, "1600086400": 2}`),
	}))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	scanner := NewScanner(store, 7*24*time.Hour, logger)
	scanner.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	inactive, err := scanner.InactiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, inactive, 2)

	out := buf.String()
	assert.Contains(t, out, "handle=stale last_activity=2020-09-14T12:26:40.000Z")
	assert.Contains(t, out, "handle=never\n")
}
