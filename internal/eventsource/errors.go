package eventsource

import "errors"

var (
	// ErrSourceUnavailable indicates the upstream node cannot be reached.
	// Retryable: the indexer backs off and re-establishes the stream.
	ErrSourceUnavailable = errors.New("event source unavailable")

	// ErrInvalidEvent indicates a log that matched the contract filter but
	// could not be decoded. Not retryable: the log is counted and skipped.
	ErrInvalidEvent = errors.New("invalid event payload")
)
