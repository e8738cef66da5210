package postgres

import (
	"context"
	"fmt"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// ParamsStore implements storage.ParamsStore using PostgreSQL.
//
// The parameters live in a singleton row (id = 1), seeded by migrations
// with the defaults. Optimistic concurrency compares the caller's version
// against last_updated in epoch milliseconds.
type ParamsStore struct {
	pool *Pool
}

// NewParamsStore creates a new ParamsStore.
func NewParamsStore(pool *Pool) *ParamsStore {
	return &ParamsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ParamsStore = (*ParamsStore)(nil)

// Get retrieves the current scoring parameters.
func (s *ParamsStore) Get(ctx context.Context) (*domain.ScoreParams, error) {
	var p domain.ScoreParams
	var curve string

	err := s.pool.QueryRow(ctx,
		`SELECT weight_economic, weight_resonance, curve, last_updated FROM score_params WHERE id = 1`,
	).Scan(&p.WeightEconomic, &p.WeightResonance, &curve, &p.LastUpdated)
	if err != nil {
		if isNotFoundError(err) {
			defaults := domain.DefaultScoreParams()
			return &defaults, nil
		}
		return nil, fmt.Errorf("get score params: %w", err)
	}

	p.Curve, err = domain.ParseCurve(curve)
	if err != nil {
		return nil, fmt.Errorf("stored curve %q: %w", curve, err)
	}
	return &p, nil
}

// Update validates and replaces the parameters. When expectedVersion is
// non-zero it must match the stored last_updated or ErrConflict is
// returned.
func (s *ParamsStore) Update(ctx context.Context, params *domain.ScoreParams, expectedVersion int64) error {
	if params == nil {
		return storage.ErrInvalidInput
	}
	if err := params.Validate(); err != nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin params tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastUpdated time.Time
	err = tx.QueryRow(ctx,
		`SELECT last_updated FROM score_params WHERE id = 1 FOR UPDATE`,
	).Scan(&lastUpdated)
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("lock score params: %w", err)
	}
	if expectedVersion != 0 && lastUpdated.UnixMilli() != expectedVersion {
		return storage.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO score_params (id, weight_economic, weight_resonance, curve, last_updated)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			weight_economic = EXCLUDED.weight_economic,
			weight_resonance = EXCLUDED.weight_resonance,
			curve = EXCLUDED.curve,
			last_updated = EXCLUDED.last_updated
	`, params.WeightEconomic, params.WeightResonance, string(params.Curve), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update score params: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit params tx: %w", err)
	}
	return nil
}
