package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// Log is a decoded contract log entry.
type Log struct {
	Address     string   // emitting contract, lower-cased 0x hex
	Topics      []string // topic 0 is the event signature hash
	Data        string   // 0x-prefixed hex payload
	BlockNumber uint64
	TxHash      string
	LogIndex    uint32
	Removed     bool // true when the log was reorged out
}

// FilterQuery selects logs by block range and emitting contract.
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Address   string
	Topics    []string // optional topic-0 filter
}

// ParseHexUint64 parses a 0x-prefixed hex quantity.
func ParseHexUint64(s string) (uint64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("hex quantity %q overflows uint64", s)
	}
	return v.Uint64(), nil
}

// FormatHexUint64 renders a block number as a 0x-prefixed hex quantity.
func FormatHexUint64(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// HexToBig parses an arbitrary-width 0x-prefixed hex quantity.
func HexToBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
