package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leetboard/statsync/internal/models"
)

func TestScoreIsWeightedSum(t *testing.T) {
	for l := 0; l <= 12; l++ {
		for m := 0; m <= 12; m++ {
			for h := 0; h <= 12; h++ {
				assert.Equal(t, l+2*m+3*h, Score(l, m, h), "score(%d,%d,%d)", l, m, h)
			}
		}
	}
}

func TestScoreOf(t *testing.T) {
	tests := []struct {
		name   string
		counts models.TierCounts
		want   int
	}{
		{name: "zero", counts: models.TierCounts{}, want: 0},
		{name: "easy only", counts: models.TierCounts{Easy: 7}, want: 7},
		{name: "mixed", counts: models.TierCounts{Easy: 120, Medium: 85, Hard: 14}, want: 120 + 170 + 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreOf(tt.counts))
		})
	}
}
