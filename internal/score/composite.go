package score

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"tipscore/internal/domain"
)

// Composite combines the two normalized axis scores with the configured
// curve and weights.
//
// Linear is a plain weighted sum: only the total matters, not the split.
// Sqrt and Log apply diminishing returns per axis, so a balanced split
// scores strictly higher than the same total concentrated on one axis.
func Composite(economic domain.EconomicScore, resonance domain.ResonanceScore, params domain.ScoreParams) domain.CompositeScore {
	e := economic.Normalized
	r := resonance.Normalized

	var value float64
	switch params.Curve {
	case domain.CurveSqrt:
		value = params.WeightEconomic*math.Sqrt(e) + params.WeightResonance*math.Sqrt(r)
	case domain.CurveLog:
		value = params.WeightEconomic*math.Log1p(e) + params.WeightResonance*math.Log1p(r)
	default: // domain.CurveLinear
		value = params.WeightEconomic*e + params.WeightResonance*r
	}

	return domain.CompositeScore{
		Value:           value,
		Curve:           params.Curve,
		WeightEconomic:  params.WeightEconomic,
		WeightResonance: params.WeightResonance,
	}
}

// AxisValue returns the score of a user on one axis, computing the
// composite from the given params when asked for it.
func AxisValue(u *domain.UserScore, axis domain.Axis, params domain.ScoreParams) float64 {
	switch axis {
	case domain.AxisEconomic:
		return u.Economic.Normalized
	case domain.AxisResonance:
		return u.Resonance.Normalized
	default: // domain.AxisComposite
		return Composite(u.Economic, u.Resonance, params).Value
	}
}

// Percentile returns the rank-based percentile (0..100) of value within
// distribution. Ties share the lower percentile: the percentile is the
// fraction of values strictly below.
func Percentile(value float64, distribution []float64) float64 {
	if len(distribution) == 0 {
		return 0
	}
	below := 0
	for _, v := range distribution {
		if v < value {
			below++
		}
	}
	return float64(below) / float64(len(distribution)) * 100
}

// BuildRankings orders all user scores on one axis, descending, with ties
// broken by address ascending for determinism. Entries with equal scores
// share a rank.
func BuildRankings(users []*domain.UserScore, axis domain.Axis, params domain.ScoreParams) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, domain.RankingEntry{
			Address: u.Address,
			Score:   AxisValue(u, axis, params),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Address < entries[j].Address
	})

	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

// SnapshotStats are the aggregate statistics captured by a daily snapshot.
type SnapshotStats struct {
	TotalUsers             int
	TotalEconomicRaw       decimal.Decimal
	TotalResonanceActions  int
	AvgEconomicNormalized  float64
	AvgResonanceNormalized float64
	EconomicLevels         domain.LevelDistribution
	ResonanceLevels        domain.LevelDistribution
}

// Aggregate computes snapshot statistics over all user scores.
func Aggregate(users []*domain.UserScore) SnapshotStats {
	stats := SnapshotStats{
		TotalEconomicRaw: decimal.Zero,
		EconomicLevels:   make(domain.LevelDistribution),
		ResonanceLevels:  make(domain.LevelDistribution),
	}

	var sumEcon, sumRes float64
	for _, u := range users {
		stats.TotalUsers++
		stats.TotalEconomicRaw = stats.TotalEconomicRaw.Add(u.Economic.Raw)
		stats.TotalResonanceActions += u.Resonance.Count
		sumEcon += u.Economic.Normalized
		sumRes += u.Resonance.Normalized
		stats.EconomicLevels[u.Economic.DisplayLevel]++
		stats.ResonanceLevels[u.Resonance.DisplayLevel]++
	}

	if stats.TotalUsers > 0 {
		stats.AvgEconomicNormalized = sumEcon / float64(stats.TotalUsers)
		stats.AvgResonanceNormalized = sumRes / float64(stats.TotalUsers)
	}
	return stats
}
