package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0xabcdef1234567890abcdef1234567890abcdef12",
		NormalizeAddress("  0xABCDEF1234567890abcdef1234567890ABCDEF12 "))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, ValidAddress("0x111"))
	assert.False(t, ValidAddress("1111111111111111111111111111111111111111"))
	assert.False(t, ValidAddress("0x111111111111111111111111111111111111111G"))
	// Upper case must be normalized first.
	assert.False(t, ValidAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
}

func TestTippedEventKeyAndTime(t *testing.T) {
	e := TippedEvent{
		TxHash:    "0xabc",
		LogIndex:  7,
		Timestamp: 1700000000,
	}
	assert.Equal(t, "0xabc:7", e.Key())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), e.Time())
}

func TestTippedEventValidate(t *testing.T) {
	valid := TippedEvent{
		TxHash:    "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000",
		From:      "0x1111111111111111111111111111111111111111",
		To:        "0x2222222222222222222222222222222222222222",
		Token:     "0x3333333333333333333333333333333333333333",
		Amount:    decimal.NewFromInt(1),
		Timestamp: 1700000000,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(e *TippedEvent)
	}{
		{"bad tx hash", func(e *TippedEvent) { e.TxHash = "0x123" }},
		{"bad from", func(e *TippedEvent) { e.From = "nope" }},
		{"bad to", func(e *TippedEvent) { e.To = "" }},
		{"bad token", func(e *TippedEvent) { e.Token = "0x1" }},
		{"negative amount", func(e *TippedEvent) { e.Amount = decimal.NewFromInt(-1) }},
		{"missing timestamp", func(e *TippedEvent) { e.Timestamp = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestDateHelpers(t *testing.T) {
	assert.Equal(t, "2025-03-01",
		DateOf(time.Date(2025, time.March, 1, 23, 59, 0, 0, time.UTC)))

	// Non-UTC times collapse onto the UTC calendar day.
	loc := time.FixedZone("east", 5*3600)
	assert.Equal(t, "2025-02-28",
		DateOf(time.Date(2025, time.March, 1, 2, 0, 0, 0, loc)))

	assert.Equal(t, 0, DaysBetween("2025-03-01", "2025-03-01"))
	assert.Equal(t, 1, DaysBetween("2025-03-01", "2025-03-02"))
	assert.Equal(t, 3, DaysBetween("2025-02-28", "2025-03-03"))
	assert.Equal(t, -1, DaysBetween("2025-03-02", "2025-03-01"))
}

func TestUserScoreClone(t *testing.T) {
	u := NewUserScore("0x1111111111111111111111111111111111111111")
	u.Economic.PerToken = map[string]decimal.Decimal{"0xaa": decimal.NewFromInt(5)}
	u.Resonance.ActionBreakdown = map[string]int{"tip": 3}

	c := u.Clone()
	c.Economic.PerToken["0xaa"] = decimal.NewFromInt(99)
	c.Resonance.ActionBreakdown["tip"] = 99

	assert.True(t, u.Economic.PerToken["0xaa"].Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 3, u.Resonance.ActionBreakdown["tip"])
}

func TestParseCurve(t *testing.T) {
	for _, name := range []string{"LINEAR", "SQRT", "LOG"} {
		c, err := ParseCurve(name)
		require.NoError(t, err)
		assert.Equal(t, Curve(name), c)
	}

	_, err := ParseCurve("linear")
	assert.Error(t, err)
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in   string
		want Axis
	}{
		{"ECONOMIC", AxisEconomic},
		{"resonance", AxisResonance},
		{"Composite", AxisComposite},
	}
	for _, tt := range tests {
		got, err := ParseAxis(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseAxis("diagonal")
	assert.Error(t, err)
}

func TestScoreParamsValidate(t *testing.T) {
	p := DefaultScoreParams()
	require.NoError(t, p.Validate())

	p.WeightEconomic = 0
	assert.Error(t, p.Validate())
}

func TestTokenAxisValidate(t *testing.T) {
	a := DefaultTokenAxis("0x3333333333333333333333333333333333333333")
	require.NoError(t, a.Validate())

	a.Decimals = 78
	assert.Error(t, a.Validate())

	a = DefaultTokenAxis("0x3333333333333333333333333333333333333333")
	a.ReferenceRate = decimal.Zero
	assert.Error(t, a.Validate())
}
