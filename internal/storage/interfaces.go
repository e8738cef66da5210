package storage

import (
	"context"

	"tipscore/internal/domain"
)

// ScoreStore owns all per-user score state.
type ScoreStore interface {
	// ApplyEvent applies one tip event: dedupe check on (tx_hash, log_index),
	// axis classification at processing time, calculator update, atomic
	// persist. A duplicate is a silent no-op reported as applied=false.
	// On failure the store is left in its pre-call state.
	ApplyEvent(ctx context.Context, event *domain.TippedEvent) (applied bool, err error)

	// GetUserScore retrieves the score state for a (lower-cased) address.
	// Returns ErrNotFound when the address has never contributed.
	GetUserScore(ctx context.Context, address string) (*domain.UserScore, error)

	// ListUserScores retrieves all user scores, ordered by address ASC.
	ListUserScores(ctx context.Context) ([]*domain.UserScore, error)

	// CountUsers returns the total tracked-user population.
	CountUsers(ctx context.Context) (int, error)

	// GenerateRankings produces the ordered projection for one axis:
	// full scan + deterministic sort, ties broken by address.
	GenerateRankings(ctx context.Context, axis domain.Axis) ([]domain.RankingEntry, error)

	// GenerateSnapshot produces a point-in-time aggregate capture.
	GenerateSnapshot(ctx context.Context) (*domain.DailySnapshot, error)
}

// TokenAxisStore holds per-token axis classifications.
type TokenAxisStore interface {
	// Upsert creates or replaces a token's classification. Historical
	// user scores are never touched (forward-only reclassification).
	Upsert(ctx context.Context, axis *domain.TokenAxis) error

	// Get retrieves a token's classification. Returns ErrNotFound for
	// tokens never configured.
	Get(ctx context.Context, token string) (*domain.TokenAxis, error)

	// List retrieves all configured tokens, ordered by address ASC.
	List(ctx context.Context) ([]*domain.TokenAxis, error)
}

// ParamsStore holds the global scoring parameters singleton.
type ParamsStore interface {
	// Get retrieves the current parameters. A store with no explicit row
	// returns the defaults.
	Get(ctx context.Context) (*domain.ScoreParams, error)

	// Update validates and replaces the parameters. Returns ErrInvalidInput
	// for non-positive weights or unknown curves. When expectedVersion is
	// non-zero it must match the stored LastUpdated or ErrConflict is
	// returned (optimistic concurrency for concurrent admin updates).
	Update(ctx context.Context, params *domain.ScoreParams, expectedVersion int64) error
}

// CheckpointStore persists the indexer's resume position.
type CheckpointStore interface {
	// Get retrieves the last committed checkpoint. Returns ErrNotFound
	// before the first save.
	Get(ctx context.Context) (*domain.Checkpoint, error)

	// Save durably records the last fully-applied block.
	Save(ctx context.Context, lastBlock uint64) error
}

// SnapshotArchive keeps the history of generated snapshots. Append-only;
// backed by the analytics store when configured.
type SnapshotArchive interface {
	// Archive appends a snapshot to the history.
	Archive(ctx context.Context, snap *domain.DailySnapshot) error

	// Latest retrieves the most recently archived snapshot.
	// Returns ErrNotFound when no snapshot was ever archived.
	Latest(ctx context.Context) (*domain.DailySnapshot, error)
}

// TipArchive keeps an append-only audit trail of applied tip events for
// analytics. Best-effort: the indexer tolerates archive failures.
type TipArchive interface {
	// InsertTips appends applied tip events.
	InsertTips(ctx context.Context, events []*domain.TippedEvent) error
}
