package eventsource

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tipscore/internal/chain"
	"tipscore/internal/domain"
)

// Event signature hashes (topic 0) for the contract events we index.
const (
	// Tipped(address indexed from, address indexed to, address indexed token, uint256 amount, bytes32 action)
	TopicTipped = "0x7c5e0d2cbfdcba1b6b128e2fd35bb3f26498cf4f20a1bb8db1ee959a128e5bfe"

	// ScoreParamsUpdated(uint256 weightEconomic, uint256 weightResonance, uint8 curve)
	TopicParamsUpdated = "0x1a8e3c7b9d25f14e38b8dcf3a4e6ab5c91d04e7fa2563cd8e19b7a4c05f3d261"

	// TokenAxisUpdated(address indexed token, bool isEconomic, uint8 decimals, uint256 referenceRate)
	TopicAxisUpdated = "0x93b4dfe82a17c055e63bc19a8f4e2d7c6054b8a9e1f72c38d5ab60c947e1fa58"
)

// Topics returns all event signatures the adapter filters on.
func Topics() []string {
	return []string{TopicTipped, TopicParamsUpdated, TopicAxisUpdated}
}

const wordHexLen = 64

// weightScale is the on-chain fixed-point scale for weights and rates.
var weightScale = decimal.New(1, 18)

// DecodeLog turns a raw contract log into a chain event. The block
// timestamp is supplied by the caller since logs do not carry one.
func DecodeLog(log chain.Log, blockTime int64) (*domain.ChainEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrInvalidEvent)
	}

	switch strings.ToLower(log.Topics[0]) {
	case TopicTipped:
		return decodeTipped(log, blockTime)
	case TopicParamsUpdated:
		return decodeParamsUpdated(log, blockTime)
	case TopicAxisUpdated:
		return decodeAxisUpdated(log, blockTime)
	default:
		return nil, fmt.Errorf("%w: unknown topic %s", ErrInvalidEvent, log.Topics[0])
	}
}

func decodeTipped(log chain.Log, blockTime int64) (*domain.ChainEvent, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("%w: tipped event wants 4 topics, got %d", ErrInvalidEvent, len(log.Topics))
	}

	words, err := dataWords(log.Data, 1)
	if err != nil {
		return nil, err
	}

	amount, err := wordToAmount(words[0])
	if err != nil {
		return nil, err
	}

	event := &domain.TippedEvent{
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		BlockNumber: log.BlockNumber,
		Timestamp:   blockTime,
		From:        topicToAddress(log.Topics[1]),
		To:          topicToAddress(log.Topics[2]),
		Token:       topicToAddress(log.Topics[3]),
		Amount:      amount,
	}
	if len(words) > 1 {
		event.ActionHint = wordToTag(words[1])
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return &domain.ChainEvent{
		Kind:        domain.EventKindTipped,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Tipped:      event,
	}, nil
}

func decodeParamsUpdated(log chain.Log, blockTime int64) (*domain.ChainEvent, error) {
	words, err := dataWords(log.Data, 3)
	if err != nil {
		return nil, err
	}

	weightEconomic, err := wordToWeight(words[0])
	if err != nil {
		return nil, err
	}
	weightResonance, err := wordToWeight(words[1])
	if err != nil {
		return nil, err
	}
	curve, err := wordToCurve(words[2])
	if err != nil {
		return nil, err
	}

	params := &domain.ScoreParams{
		WeightEconomic:  weightEconomic,
		WeightResonance: weightResonance,
		Curve:           curve,
		LastUpdated:     time.Unix(blockTime, 0).UTC(),
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return &domain.ChainEvent{
		Kind:        domain.EventKindParamsUpdated,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Params:      params,
	}, nil
}

func decodeAxisUpdated(log chain.Log, blockTime int64) (*domain.ChainEvent, error) {
	if len(log.Topics) != 2 {
		return nil, fmt.Errorf("%w: axis event wants 2 topics, got %d", ErrInvalidEvent, len(log.Topics))
	}

	words, err := dataWords(log.Data, 3)
	if err != nil {
		return nil, err
	}

	isEconomic, err := wordToBool(words[0])
	if err != nil {
		return nil, err
	}
	decimals, err := chain.ParseHexUint64("0x" + words[1])
	if err != nil || decimals > 77 {
		return nil, fmt.Errorf("%w: bad decimals word", ErrInvalidEvent)
	}
	rate, err := wordToRate(words[2])
	if err != nil {
		return nil, err
	}

	axis := &domain.TokenAxis{
		Token:         topicToAddress(log.Topics[1]),
		IsEconomic:    isEconomic,
		Decimals:      int32(decimals),
		ReferenceRate: rate,
		UpdatedAt:     time.Unix(blockTime, 0).UTC(),
	}
	if err := axis.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return &domain.ChainEvent{
		Kind:        domain.EventKindAxisUpdated,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		TokenAxis:   axis,
	}, nil
}

// dataWords splits the 0x-prefixed data payload into 32-byte hex words.
func dataWords(data string, min int) ([]string, error) {
	hex := strings.TrimPrefix(strings.ToLower(data), "0x")
	if len(hex)%wordHexLen != 0 {
		return nil, fmt.Errorf("%w: data length %d not word-aligned", ErrInvalidEvent, len(hex))
	}
	var words []string
	for i := 0; i+wordHexLen <= len(hex); i += wordHexLen {
		words = append(words, hex[i:i+wordHexLen])
	}
	if len(words) < min {
		return nil, fmt.Errorf("%w: data wants %d words, got %d", ErrInvalidEvent, min, len(words))
	}
	return words, nil
}

// topicToAddress extracts the right-aligned 20-byte address from a topic.
func topicToAddress(topic string) string {
	hex := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(hex) < 40 {
		return ""
	}
	return "0x" + hex[len(hex)-40:]
}

// wordToAmount parses a uint256 word as a raw token amount.
func wordToAmount(word string) (decimal.Decimal, error) {
	v, err := chain.HexToBig("0x" + word)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad amount word", ErrInvalidEvent)
	}
	return decimal.NewFromBigInt(v, 0), nil
}

// wordToWeight parses a 1e18 fixed-point weight into a float.
func wordToWeight(word string) (float64, error) {
	v, err := chain.HexToBig("0x" + word)
	if err != nil {
		return 0, fmt.Errorf("%w: bad weight word", ErrInvalidEvent)
	}
	w, _ := decimal.NewFromBigInt(v, 0).Div(weightScale).Float64()
	return w, nil
}

// wordToRate parses a 1e18 fixed-point reference rate.
func wordToRate(word string) (decimal.Decimal, error) {
	v, err := chain.HexToBig("0x" + word)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad rate word", ErrInvalidEvent)
	}
	return decimal.NewFromBigInt(v, 0).Div(weightScale), nil
}

// wordToBool parses a uint256-encoded bool.
func wordToBool(word string) (bool, error) {
	v, err := chain.HexToBig("0x" + word)
	if err != nil || !v.IsInt64() {
		return false, fmt.Errorf("%w: bad bool word", ErrInvalidEvent)
	}
	switch v.Int64() {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool word value %s", ErrInvalidEvent, v)
	}
}

// wordToCurve maps the on-chain curve enum to its domain value.
func wordToCurve(word string) (domain.Curve, error) {
	v, err := chain.HexToBig("0x" + word)
	if err != nil || !v.IsInt64() {
		return "", fmt.Errorf("%w: bad curve word", ErrInvalidEvent)
	}
	switch v.Int64() {
	case 0:
		return domain.CurveLinear, nil
	case 1:
		return domain.CurveSqrt, nil
	case 2:
		return domain.CurveLog, nil
	default:
		return "", fmt.Errorf("%w: unknown curve enum %s", ErrInvalidEvent, v)
	}
}

// wordToTag decodes a bytes32 action tag as a zero-trimmed ASCII string.
func wordToTag(word string) string {
	var b []byte
	for i := 0; i+2 <= len(word); i += 2 {
		v, err := chain.ParseHexUint64("0x" + word[i:i+2])
		if err != nil || v == 0 {
			break
		}
		if v < 0x20 || v > 0x7e {
			return ""
		}
		b = append(b, byte(v))
	}
	return string(b)
}
