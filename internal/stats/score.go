// Package stats holds the pure scoring and activity classification rules.
package stats

import "github.com/leetboard/statsync/internal/models"

// Tier weights applied to solved counts.
const (
	EasyWeight   = 1
	MediumWeight = 2
	HardWeight   = 3
)

// Score maps per-tier solved counts to a single ordinal score.
func Score(easy, medium, hard int) int {
	return easy*EasyWeight + medium*MediumWeight + hard*HardWeight
}

// ScoreOf is Score applied to a TierCounts value.
func ScoreOf(c models.TierCounts) int {
	return Score(c.Easy, c.Medium, c.Hard)
}
