package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies the type of a decoded chain event.
type EventKind string

const (
	// EventKindTipped is a tip contribution event.
	EventKindTipped EventKind = "TIPPED"

	// EventKindParamsUpdated is an on-chain update of global scoring parameters.
	EventKindParamsUpdated EventKind = "SCORE_PARAMS_UPDATED"

	// EventKindAxisUpdated is an on-chain reclassification of a token's axis.
	EventKindAxisUpdated EventKind = "TOKEN_AXIS_UPDATED"
)

// ChainEvent is a decoded, typed event from the contract log stream.
// Exactly one of Tipped, Params, TokenAxis is set, matching Kind.
type ChainEvent struct {
	Kind        EventKind
	BlockNumber uint64
	TxHash      string
	LogIndex    uint32

	Tipped    *TippedEvent
	Params    *ScoreParams
	TokenAxis *TokenAxis
}

// TippedEvent is an immutable tip contribution observed on chain.
// (TxHash, LogIndex) is the idempotency key for all downstream processing.
type TippedEvent struct {
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint32          `json:"log_index"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   int64           `json:"timestamp"` // unix seconds
	From        string          `json:"from"`      // tipper, lower-cased hex
	To          string          `json:"to"`        // tenant, lower-cased hex
	Token       string          `json:"token"`     // token contract, lower-cased hex
	Amount      decimal.Decimal `json:"amount"`    // raw token units (pre-normalization)
	ActionHint  string          `json:"action_hint,omitempty"`
}

// Key returns the idempotency key "txHash:logIndex".
func (e *TippedEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// Time returns the event timestamp as UTC time.
func (e *TippedEvent) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

// NormalizeAddress lower-cases a hex address. Addresses are case-insensitive
// on chain; the lower-cased form is the primary key everywhere downstream.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidAddress reports whether addr is a normalized 20-byte hex address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Validate checks structural invariants of a tip event.
func (e *TippedEvent) Validate() error {
	if !txHashPattern.MatchString(e.TxHash) {
		return fmt.Errorf("invalid tx hash %q", e.TxHash)
	}
	if !ValidAddress(e.From) {
		return fmt.Errorf("invalid from address %q", e.From)
	}
	if !ValidAddress(e.To) {
		return fmt.Errorf("invalid to address %q", e.To)
	}
	if !ValidAddress(e.Token) {
		return fmt.Errorf("invalid token address %q", e.Token)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("negative amount %s", e.Amount)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}
