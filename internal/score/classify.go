// Package score contains the pure score calculator: deterministic,
// side-effect-free functions turning accumulated state plus one event into
// new state. Nothing in this package touches storage or the clock.
package score

import "tipscore/internal/domain"

// Contribution is the axis a tip event lands on.
type Contribution int

const (
	// Economic contributions add monetary-equivalent value.
	Economic Contribution = iota
	// Resonance contributions add non-monetary engagement.
	Resonance
)

// Classify determines an event's axis from the token's classification at
// processing time. Reclassifying a token is forward-only: already-applied
// history keeps the axis it was applied under.
func Classify(event *domain.TippedEvent, axis domain.TokenAxis) Contribution {
	if axis.IsEconomic {
		return Economic
	}
	return Resonance
}

// ActionType returns the resonance action label for an event: the decoded
// hint when present, otherwise a generic tip action.
func ActionType(event *domain.TippedEvent) string {
	if event.ActionHint != "" {
		return event.ActionHint
	}
	return "tip"
}
