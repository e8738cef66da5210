package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tipscore/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 12, 0, 0, 0, time.UTC)
}

func TestApplyResonanceStreaks(t *testing.T) {
	tests := []struct {
		name        string
		days        []int
		wantCount   int
		wantStreak  int
		wantLongest int
	}{
		{"first action", []int{1}, 1, 1, 1},
		{"same day repeat", []int{1, 1}, 2, 1, 1},
		{"consecutive days", []int{1, 2, 3}, 3, 3, 3},
		{"gap resets streak", []int{1, 2, 5}, 3, 1, 2},
		{"rebuild after reset", []int{1, 2, 5, 6, 7, 8}, 6, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := domain.NewResonanceScore()
			for _, d := range tt.days {
				cur = ApplyResonance(cur, "tip", day(d))
			}
			assert.Equal(t, tt.wantCount, cur.Count)
			assert.Equal(t, tt.wantStreak, cur.Streak)
			assert.Equal(t, tt.wantLongest, cur.LongestStreak)
		})
	}
}

func TestApplyResonanceTracksActionBreakdown(t *testing.T) {
	cur := domain.NewResonanceScore()
	cur = ApplyResonance(cur, "tip", day(1))
	cur = ApplyResonance(cur, "tip", day(2))
	cur = ApplyResonance(cur, "boost", day(2))

	assert.Equal(t, 2, cur.ActionBreakdown["tip"])
	assert.Equal(t, 1, cur.ActionBreakdown["boost"])
	assert.Equal(t, "2025-03-02", cur.LastActionDate)
}

func TestApplyResonanceDoesNotMutateInput(t *testing.T) {
	orig := domain.NewResonanceScore()
	orig = ApplyResonance(orig, "tip", day(1))

	_ = ApplyResonance(orig, "tip", day(2))

	assert.Equal(t, 1, orig.Count)
	assert.Equal(t, 1, orig.ActionBreakdown["tip"])
	assert.Equal(t, "2025-03-01", orig.LastActionDate)
}

func TestResonanceNormalized(t *testing.T) {
	assert.Equal(t, 0.0, ResonanceNormalized(0, 0))

	// Log-scaled in count, boosted by streak, capped at 1.
	low := ResonanceNormalized(1, 1)
	high := ResonanceNormalized(100, 1)
	assert.Greater(t, high, low)

	boosted := ResonanceNormalized(100, 10)
	assert.Greater(t, boosted, high)

	// Bonus caps at 50% regardless of streak length.
	assert.Equal(t, ResonanceNormalized(100, 10), ResonanceNormalized(100, 500))

	// Never exceeds 1 even for huge counts.
	assert.LessOrEqual(t, ResonanceNormalized(100000, 500), 1.0)
}

func TestResonanceLevels(t *testing.T) {
	tests := []struct {
		count int
		level int
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 2},
		{7, 3},
		{365, 9},
		{1000, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, resonanceLevel(tt.count), "count=%d", tt.count)
	}
}

func TestApplyResonanceThreeDayScenario(t *testing.T) {
	cur := domain.NewResonanceScore()
	for d := 1; d <= 3; d++ {
		cur = ApplyResonance(cur, "tip", day(d))
	}

	assert.Equal(t, 3, cur.Count)
	assert.Equal(t, 3, cur.Streak)
	assert.Equal(t, 3, cur.LongestStreak)
	assert.Equal(t, 2, cur.Level)
	assert.Greater(t, cur.Normalized, 0.0)
	assert.LessOrEqual(t, cur.Normalized, 1.0)
}
