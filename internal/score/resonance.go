package score

import (
	"math"
	"time"

	"tipscore/internal/domain"
)

// Resonance normalization constants: count saturates the log term at
// resonanceCountScale actions, streaks add up to streakBonusCap on top.
const (
	resonanceCountScale = 1000.0
	streakBonusStep     = 0.05
	streakBonusCap      = 0.5
)

// resonanceLevelThresholds maps action count to an integer level.
var resonanceLevelThresholds = []int{
	1, 3, 7, 15, 30, 60, 100, 180, 365, 1000,
}

// ApplyResonance returns the resonance state after one action at eventTime.
// The input state is not mutated.
//
// Streak rule: same UTC day leaves the streak unchanged, a gap of exactly
// one day increments it, a larger gap resets it to 1. LongestStreak never
// decreases.
func ApplyResonance(cur domain.ResonanceScore, actionType string, eventTime time.Time) domain.ResonanceScore {
	next := cur
	next.ActionBreakdown = make(map[string]int, len(cur.ActionBreakdown)+1)
	for k, v := range cur.ActionBreakdown {
		next.ActionBreakdown[k] = v
	}

	next.Count = cur.Count + 1
	next.ActionBreakdown[actionType]++

	date := domain.DateOf(eventTime)
	switch {
	case cur.LastActionDate == "":
		next.Streak = 1
	case domain.DaysBetween(cur.LastActionDate, date) == 0:
		// Same-day repeat, streak unchanged.
	case domain.DaysBetween(cur.LastActionDate, date) == 1:
		next.Streak = cur.Streak + 1
	default:
		next.Streak = 1
	}
	next.LastActionDate = date

	if next.Streak > next.LongestStreak {
		next.LongestStreak = next.Streak
	}

	next.Normalized = ResonanceNormalized(next.Count, next.Streak)
	next.Level = resonanceLevel(next.Count)
	next.DisplayLevel = DisplayLevel(next.Level)
	return next
}

// ResonanceNormalized maps action count and current streak to [0, 1].
// Log-scaled in count, boosted by the streak, saturating at 1.0.
func ResonanceNormalized(count, streak int) float64 {
	if count <= 0 {
		return 0
	}
	base := math.Log(float64(count)+1) / math.Log(resonanceCountScale+1)
	bonus := streakBonusStep * float64(streak)
	if bonus > streakBonusCap {
		bonus = streakBonusCap
	}
	normalized := base * (1 + bonus)
	if normalized > 1 {
		return 1
	}
	return normalized
}

// resonanceLevel counts how many thresholds the action count clears.
func resonanceLevel(count int) int {
	level := 0
	for _, threshold := range resonanceLevelThresholds {
		if count < threshold {
			break
		}
		level++
	}
	return level
}
