package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Axis identifies a ranking dimension.
type Axis string

const (
	AxisEconomic  Axis = "ECONOMIC"
	AxisResonance Axis = "RESONANCE"
	AxisComposite Axis = "COMPOSITE"
)

// ParseAxis parses an axis name, case-insensitively.
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToUpper(s)) {
	case AxisEconomic:
		return AxisEconomic, nil
	case AxisResonance:
		return AxisResonance, nil
	case AxisComposite:
		return AxisComposite, nil
	default:
		return "", fmt.Errorf("unknown axis %q", s)
	}
}

// RankingEntry is one row of an ordered projection over all user scores for
// a single axis. Regenerated on demand, never incrementally maintained.
type RankingEntry struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"` // 1-based; ties share a rank, order breaks by address
}

// LevelDistribution counts users per display level for one axis.
type LevelDistribution map[int]int

// DailySnapshot is an immutable point-in-time capture of aggregate score
// statistics. Generated on request; scheduling is an external concern.
type DailySnapshot struct {
	ID      string    `json:"id"`
	TakenAt time.Time `json:"taken_at"`

	TotalUsers            int             `json:"total_users"`
	TotalEconomicRaw      decimal.Decimal `json:"total_economic_raw"`
	TotalResonanceActions int             `json:"total_resonance_actions"`

	AvgEconomicNormalized  float64 `json:"avg_economic_normalized"`
	AvgResonanceNormalized float64 `json:"avg_resonance_normalized"`

	EconomicLevels  LevelDistribution `json:"economic_levels"`
	ResonanceLevels LevelDistribution `json:"resonance_levels"`
}

// Checkpoint is the last block position the indexer has durably committed,
// used for crash-safe resumption.
type Checkpoint struct {
	LastBlock uint64    `json:"last_block"`
	UpdatedAt time.Time `json:"updated_at"`
}
