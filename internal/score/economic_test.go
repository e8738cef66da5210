package score

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipscore/internal/domain"
)

func economicAxis(decimals int32, rate string) domain.TokenAxis {
	r, _ := decimal.NewFromString(rate)
	return domain.TokenAxis{
		Token:         "0x00000000000000000000000000000000000000aa",
		IsEconomic:    true,
		Decimals:      decimals,
		ReferenceRate: r,
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		rate     string
		want     string
	}{
		{"whole token at rate 1", "1000000000000000000", 18, "1", "1"},
		{"six decimals", "2500000", 6, "1", "2.5"},
		{"rate conversion", "1000000000000000000", 18, "0.5", "0.5"},
		{"zero amount", "0", 18, "1", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			require.NoError(t, err)

			got := NormalizeAmount(amount, economicAxis(tt.decimals, tt.rate))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestApplyEconomicAccumulates(t *testing.T) {
	axis := economicAxis(18, "1")
	cur := domain.NewEconomicScore()

	// 1000 whole tokens in one tip
	cur = ApplyEconomic(cur, decimal.RequireFromString("1000000000000000000000"), axis.Token, axis)

	assert.True(t, cur.Raw.Equal(decimal.NewFromInt(1000)))
	assert.InDelta(t, 0.5, cur.Normalized, 1e-9) // raw/(raw+1000)
	assert.Equal(t, 7, cur.Level)                // clears 1..1000
	assert.Equal(t, 7, cur.DisplayLevel)
	assert.True(t, cur.PerToken[axis.Token].Equal(decimal.NewFromInt(1000)))

	// Second tip accumulates
	cur = ApplyEconomic(cur, decimal.RequireFromString("1000000000000000000000"), axis.Token, axis)
	assert.True(t, cur.Raw.Equal(decimal.NewFromInt(2000)))
}

func TestApplyEconomicDoesNotMutateInput(t *testing.T) {
	axis := economicAxis(18, "1")
	orig := domain.NewEconomicScore()
	orig.PerToken = map[string]decimal.Decimal{axis.Token: decimal.NewFromInt(5)}
	orig.Raw = decimal.NewFromInt(5)

	_ = ApplyEconomic(orig, decimal.RequireFromString("1000000000000000000"), axis.Token, axis)

	assert.True(t, orig.Raw.Equal(decimal.NewFromInt(5)))
	assert.True(t, orig.PerToken[axis.Token].Equal(decimal.NewFromInt(5)))
}

func TestEconomicNormalizedMonotonic(t *testing.T) {
	prev := -1.0
	for _, raw := range []int64{0, 1, 10, 100, 1000, 10000, 1000000} {
		n := EconomicNormalized(decimal.NewFromInt(raw))
		assert.Greater(t, n, prev-1e-12, "normalized must never decrease")
		assert.Less(t, n, 1.0)
		prev = n
	}
}

func TestEconomicLevels(t *testing.T) {
	tests := []struct {
		raw   int64
		level int
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{100, 4},
		{10000, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, economicLevel(decimal.NewFromInt(tt.raw)), "raw=%d", tt.raw)
	}
}

func TestDisplayLevelFloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, DisplayLevel(0))
	assert.Equal(t, 1, DisplayLevel(1))
	assert.Equal(t, 7, DisplayLevel(7))
}
