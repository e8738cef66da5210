package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Curve selects how the two axis scores are combined into a composite.
type Curve string

const (
	// CurveLinear is a plain weighted sum. Neutral to how contribution is
	// split across axes.
	CurveLinear Curve = "LINEAR"

	// CurveSqrt is a weighted sum of square roots. Diminishing returns per
	// axis, rewards balance over single-axis maximization.
	CurveSqrt Curve = "SQRT"

	// CurveLog is a weighted sum of log(1+x). Strongly rewards balance.
	CurveLog Curve = "LOG"
)

// ParseCurve parses a curve name. Returns an error for unknown values;
// curves are never silently clamped or defaulted on write paths.
func ParseCurve(s string) (Curve, error) {
	switch Curve(s) {
	case CurveLinear, CurveSqrt, CurveLog:
		return Curve(s), nil
	default:
		return "", fmt.Errorf("unknown curve %q", s)
	}
}

// ScoreParams are the global scoring parameters. A single versioned row;
// LastUpdated doubles as the optimistic concurrency token for admin updates.
type ScoreParams struct {
	WeightEconomic  float64   `json:"weight_economic"`
	WeightResonance float64   `json:"weight_resonance"`
	Curve           Curve     `json:"curve"`
	LastUpdated     time.Time `json:"last_updated"`
}

// DefaultScoreParams returns the parameters used before any admin update.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		WeightEconomic:  0.5,
		WeightResonance: 0.5,
		Curve:           CurveLinear,
	}
}

// Validate checks the strictly-positive-weights and known-curve invariants.
func (p *ScoreParams) Validate() error {
	if p.WeightEconomic <= 0 {
		return fmt.Errorf("weight_economic must be > 0, got %v", p.WeightEconomic)
	}
	if p.WeightResonance <= 0 {
		return fmt.Errorf("weight_resonance must be > 0, got %v", p.WeightResonance)
	}
	if _, err := ParseCurve(string(p.Curve)); err != nil {
		return err
	}
	return nil
}

// TokenAxis classifies a token contract onto one of the two score axes and
// carries the token-specific conversion to the reference unit. Mutable by
// admin action (or an on-chain TokenAxisUpdated event) only; changes are
// forward-only and never rewrite already-applied contributions.
type TokenAxis struct {
	Token         string          `json:"token"` // lower-cased hex address
	IsEconomic    bool            `json:"is_economic"`
	Decimals      int32           `json:"decimals"`
	ReferenceRate decimal.Decimal `json:"reference_rate"` // reference units per whole token
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DefaultTokenAxis is the classification applied to tokens that were never
// explicitly configured: non-economic, 18 decimals, rate 1.
func DefaultTokenAxis(token string) TokenAxis {
	return TokenAxis{
		Token:         NormalizeAddress(token),
		IsEconomic:    false,
		Decimals:      18,
		ReferenceRate: decimal.NewFromInt(1),
	}
}

// Validate checks structural invariants of a token axis row.
func (a *TokenAxis) Validate() error {
	if !ValidAddress(a.Token) {
		return fmt.Errorf("invalid token address %q", a.Token)
	}
	if a.Decimals < 0 || a.Decimals > 77 {
		return fmt.Errorf("decimals out of range: %d", a.Decimals)
	}
	if a.ReferenceRate.IsNegative() || a.ReferenceRate.IsZero() {
		return fmt.Errorf("reference_rate must be > 0, got %s", a.ReferenceRate)
	}
	return nil
}
