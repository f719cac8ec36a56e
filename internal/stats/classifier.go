package stats

import (
	"time"

	"github.com/leetboard/statsync/internal/models"
)

// DefaultWindow is the lookback used to decide recent activity.
const DefaultWindow = 7 * 24 * time.Hour

// Verdict is the activity classification of an account.
type Verdict int

const (
	Inactive Verdict = iota
	Active
)

func (v Verdict) String() string {
	if v == Active {
		return "active"
	}
	return "inactive"
}

// Classify decides activity from a raw calendar. A nil or unparseable
// calendar is Inactive, as is one with no key at or after now-window.
func Classify(calendar *string, now time.Time, window time.Duration) Verdict {
	if calendar == nil {
		return Inactive
	}
	cal, err := ParseCalendar(*calendar)
	if err != nil {
		return Inactive
	}

	cutoff := now.Unix() - int64(window/time.Second)
	if latest, ok := cal.Latest(); ok && latest >= cutoff {
		return Active
	}
	return Inactive
}

// ClassifySnapshot applies the score-zero short-circuit before Classify: an
// account that has never solved anything is inactive whatever its calendar says.
func ClassifySnapshot(snapshot *models.StatsSnapshot, now time.Time, window time.Duration) Verdict {
	if snapshot == nil {
		return Inactive
	}
	if ScoreOf(snapshot.Solved) <= 0 {
		return Inactive
	}
	return Classify(snapshot.SubmissionCalendar, now, window)
}

// NewSnapshot builds a snapshot from freshly fetched counts, recomputing the
// score and the activity flag.
func NewSnapshot(solved models.TierCounts, calendar *string, now time.Time, window time.Duration) models.StatsSnapshot {
	snapshot := models.StatsSnapshot{
		Solved:             solved,
		Score:              ScoreOf(solved),
		SubmissionCalendar: calendar,
		LastUpdated:        now,
	}
	snapshot.IsActive = ClassifySnapshot(&snapshot, now, window) == Active
	return snapshot
}
