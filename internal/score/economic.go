package score

import (
	"github.com/shopspring/decimal"

	"tipscore/internal/domain"
)

// economicSaturation is the cumulative raw value (in reference units) at
// which the normalized economic score reaches 0.5. normalized = raw/(raw+K)
// is monotonic in raw and saturates toward 1.0.
const economicSaturation = 1000.0

// economicLevelThresholds maps cumulative raw reference-unit value to an
// integer level. Level N requires raw >= thresholds[N-1].
var economicLevelThresholds = []float64{
	1, 5, 25, 100, 250, 500, 1000, 2500, 5000, 10000,
}

// NormalizeAmount converts a raw token amount into reference units using the
// token's configured decimals and reference rate.
func NormalizeAmount(amount decimal.Decimal, axis domain.TokenAxis) decimal.Decimal {
	whole := amount.Shift(-axis.Decimals)
	return whole.Mul(axis.ReferenceRate)
}

// ApplyEconomic returns the economic state after adding one contribution.
// The input state is not mutated. amount is the raw token amount; the
// token-specific conversion to the reference unit happens here.
func ApplyEconomic(cur domain.EconomicScore, amount decimal.Decimal, token string, axis domain.TokenAxis) domain.EconomicScore {
	next := cur
	next.PerToken = make(map[string]decimal.Decimal, len(cur.PerToken)+1)
	for k, v := range cur.PerToken {
		next.PerToken[k] = v
	}

	normalized := NormalizeAmount(amount, axis)
	next.Raw = cur.Raw.Add(normalized)
	next.PerToken[token] = next.PerToken[token].Add(normalized)

	next.Normalized = EconomicNormalized(next.Raw)
	next.Level = economicLevel(next.Raw)
	next.DisplayLevel = DisplayLevel(next.Level)
	return next
}

// EconomicNormalized maps cumulative raw value to [0, 1). Monotonic and
// saturating: more contribution never lowers the score.
func EconomicNormalized(raw decimal.Decimal) float64 {
	r, _ := raw.Float64()
	if r <= 0 {
		return 0
	}
	return r / (r + economicSaturation)
}

// economicLevel counts how many thresholds the cumulative raw value clears.
func economicLevel(raw decimal.Decimal) int {
	r, _ := raw.Float64()
	level := 0
	for _, threshold := range economicLevelThresholds {
		if r < threshold {
			break
		}
		level++
	}
	return level
}

// DisplayLevel is the user-facing level: never below 1, so a fresh profile
// renders as level 1 rather than 0.
func DisplayLevel(level int) int {
	if level < 1 {
		return 1
	}
	return level
}
