package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EconomicScore accumulates monetary-equivalent contributions for one user.
// Created empty on the first observed contribution, mutated additively,
// never deleted.
type EconomicScore struct {
	// Raw is the cumulative contribution normalized to the reference unit.
	Raw decimal.Decimal `json:"raw"`

	// PerToken breaks Raw down by token contract (still in reference units).
	PerToken map[string]decimal.Decimal `json:"per_token,omitempty"`

	Normalized   float64 `json:"normalized"` // 0..1, saturating
	Level        int     `json:"level"`
	DisplayLevel int     `json:"display_level"`
}

// NewEconomicScore returns the zero economic state. Display level starts
// at 1, the user-facing floor.
func NewEconomicScore() EconomicScore {
	return EconomicScore{Raw: decimal.Zero, DisplayLevel: 1}
}

// ResonanceScore accumulates non-monetary engagement for one user.
type ResonanceScore struct {
	Count         int `json:"count"`
	Streak        int `json:"streak"`
	LongestStreak int `json:"longest_streak"`

	// LastActionDate is the UTC calendar date ("2006-01-02") of the most
	// recent action. Empty until the first action.
	LastActionDate string `json:"last_action_date,omitempty"`

	Normalized   float64 `json:"normalized"` // 0..1, saturating
	Level        int     `json:"level"`
	DisplayLevel int     `json:"display_level"`

	// ActionBreakdown counts actions per action type.
	ActionBreakdown map[string]int `json:"action_breakdown,omitempty"`
}

// NewResonanceScore returns the zero resonance state. Display level starts
// at 1, the user-facing floor.
func NewResonanceScore() ResonanceScore {
	return ResonanceScore{DisplayLevel: 1}
}

// DateOf returns the UTC calendar date of t in "2006-01-02" form.
func DateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DaysBetween returns the whole-day distance from date a to date b
// (both "2006-01-02"). Positive when b is after a.
func DaysBetween(a, b string) int {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// CompositeScore is derived from the two axes on read. It is never persisted
// as source of truth.
type CompositeScore struct {
	Value           float64 `json:"value"`
	Curve           Curve   `json:"curve"`
	WeightEconomic  float64 `json:"weight_economic"`
	WeightResonance float64 `json:"weight_resonance"`
}

// UserScore is the aggregate score state for one address.
type UserScore struct {
	Address     string         `json:"address"`
	Economic    EconomicScore  `json:"economic"`
	Resonance   ResonanceScore `json:"resonance"`
	LastUpdated time.Time      `json:"last_updated"`
}

// NewUserScore returns an empty score for an address. Used both for lazy
// creation on first event and as the degrade-gracefully default profile.
func NewUserScore(address string) *UserScore {
	return &UserScore{
		Address:   NormalizeAddress(address),
		Economic:  NewEconomicScore(),
		Resonance: NewResonanceScore(),
	}
}

// Clone returns a deep copy, so callers can hand out score state without
// exposing internal maps to mutation.
func (u *UserScore) Clone() *UserScore {
	c := *u
	if u.Economic.PerToken != nil {
		c.Economic.PerToken = make(map[string]decimal.Decimal, len(u.Economic.PerToken))
		for k, v := range u.Economic.PerToken {
			c.Economic.PerToken[k] = v
		}
	}
	if u.Resonance.ActionBreakdown != nil {
		c.Resonance.ActionBreakdown = make(map[string]int, len(u.Resonance.ActionBreakdown))
		for k, v := range u.Resonance.ActionBreakdown {
			c.Resonance.ActionBreakdown[k] = v
		}
	}
	return &c
}
