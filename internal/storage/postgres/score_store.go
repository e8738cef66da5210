package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tipscore/internal/domain"
	"tipscore/internal/observability"
	"tipscore/internal/score"
	"tipscore/internal/storage"
)

// ScoreStore implements storage.ScoreStore using PostgreSQL.
//
// ApplyEvent runs dedupe marker, axis lookup, calculator update and user
// upsert in a single transaction: either everything commits or nothing
// does. The SELECT ... FOR UPDATE on the user row serializes concurrent
// writes per address.
type ScoreStore struct {
	pool   *Pool
	params storage.ParamsStore
}

// NewScoreStore creates a new Postgres-backed score store. Rankings read
// the current curve/weights through the given params store.
func NewScoreStore(pool *Pool, params storage.ParamsStore) *ScoreStore {
	return &ScoreStore{pool: pool, params: params}
}

// Compile-time interface check.
var _ storage.ScoreStore = (*ScoreStore)(nil)

// ApplyEvent applies one tip event exactly once.
func (s *ScoreStore) ApplyEvent(ctx context.Context, event *domain.TippedEvent) (applied bool, err error) {
	if event == nil {
		return false, storage.ErrInvalidInput
	}
	if err := event.Validate(); err != nil {
		return false, storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "apply_event", time.Since(start).Seconds(), err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Dedupe marker: zero rows affected means the key was already applied.
	tag, err := tx.Exec(ctx,
		`INSERT INTO applied_events (tx_hash, log_index) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		event.TxHash, int64(event.LogIndex),
	)
	if err != nil {
		return false, fmt.Errorf("insert dedupe marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	addr := domain.NormalizeAddress(event.From)
	user, err := lockUserScore(ctx, tx, addr)
	if err != nil {
		return false, err
	}

	axis, err := tokenAxisInTx(ctx, tx, event.Token)
	if err != nil {
		return false, err
	}

	switch score.Classify(event, axis) {
	case score.Economic:
		user.Economic = score.ApplyEconomic(user.Economic, event.Amount, event.Token, axis)
	case score.Resonance:
		user.Resonance = score.ApplyResonance(user.Resonance, score.ActionType(event), event.Time())
	}
	user.LastUpdated = event.Time()

	if err := upsertUserScore(ctx, tx, user); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit apply tx: %w", err)
	}
	return true, nil
}

// lockUserScore loads the user row FOR UPDATE, creating the empty state in
// memory when the address was never seen.
func lockUserScore(ctx context.Context, tx pgx.Tx, addr string) (*domain.UserScore, error) {
	var economicJSON, resonanceJSON []byte
	var lastUpdated time.Time

	err := tx.QueryRow(ctx,
		`SELECT economic_json, resonance_json, last_updated FROM user_scores WHERE address = $1 FOR UPDATE`,
		addr,
	).Scan(&economicJSON, &resonanceJSON, &lastUpdated)
	if err != nil {
		if isNotFoundError(err) {
			return domain.NewUserScore(addr), nil
		}
		return nil, fmt.Errorf("lock user score: %w", err)
	}

	return decodeUserScore(addr, economicJSON, resonanceJSON, lastUpdated)
}

// tokenAxisInTx loads the processing-time classification inside the apply
// transaction, defaulting unknown tokens to the resonance axis.
func tokenAxisInTx(ctx context.Context, tx pgx.Tx, token string) (domain.TokenAxis, error) {
	var axis domain.TokenAxis
	axis.Token = domain.NormalizeAddress(token)

	var rate string
	err := tx.QueryRow(ctx,
		`SELECT is_economic, decimals, reference_rate::text, updated_at FROM token_axis WHERE token_address = $1`,
		axis.Token,
	).Scan(&axis.IsEconomic, &axis.Decimals, &rate, &axis.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return domain.DefaultTokenAxis(token), nil
		}
		return domain.TokenAxis{}, fmt.Errorf("load token axis: %w", err)
	}

	axis.ReferenceRate, err = parseDecimal(rate)
	if err != nil {
		return domain.TokenAxis{}, fmt.Errorf("parse reference rate: %w", err)
	}
	return axis, nil
}

// upsertUserScore writes the new state for an address.
func upsertUserScore(ctx context.Context, tx pgx.Tx, user *domain.UserScore) error {
	economicJSON, err := json.Marshal(user.Economic)
	if err != nil {
		return fmt.Errorf("marshal economic score: %w", err)
	}
	resonanceJSON, err := json.Marshal(user.Resonance)
	if err != nil {
		return fmt.Errorf("marshal resonance score: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_scores (address, economic_json, resonance_json, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			economic_json = EXCLUDED.economic_json,
			resonance_json = EXCLUDED.resonance_json,
			last_updated = EXCLUDED.last_updated
	`, user.Address, economicJSON, resonanceJSON, user.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert user score: %w", err)
	}
	return nil
}

// GetUserScore retrieves the score state for an address.
func (s *ScoreStore) GetUserScore(ctx context.Context, address string) (*domain.UserScore, error) {
	addr := domain.NormalizeAddress(address)

	var economicJSON, resonanceJSON []byte
	var lastUpdated time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT economic_json, resonance_json, last_updated FROM user_scores WHERE address = $1`,
		addr,
	).Scan(&economicJSON, &resonanceJSON, &lastUpdated)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user score: %w", err)
	}

	return decodeUserScore(addr, economicJSON, resonanceJSON, lastUpdated)
}

// ListUserScores retrieves all user scores, ordered by address ASC.
func (s *ScoreStore) ListUserScores(ctx context.Context) ([]*domain.UserScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, economic_json, resonance_json, last_updated FROM user_scores ORDER BY address ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list user scores: %w", err)
	}
	defer rows.Close()

	var users []*domain.UserScore
	for rows.Next() {
		var addr string
		var economicJSON, resonanceJSON []byte
		var lastUpdated time.Time

		if err := rows.Scan(&addr, &economicJSON, &resonanceJSON, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan user score row: %w", err)
		}

		user, err := decodeUserScore(addr, economicJSON, resonanceJSON, lastUpdated)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user score rows: %w", err)
	}
	return users, nil
}

// CountUsers returns the tracked-user population.
func (s *ScoreStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_scores`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// GenerateRankings produces the ordered projection for one axis.
// Full scan + sort per call: rankings are a derived, regenerate-on-demand
// view, not a live-updated index.
func (s *ScoreStore) GenerateRankings(ctx context.Context, axis domain.Axis) ([]domain.RankingEntry, error) {
	users, err := s.ListUserScores(ctx)
	if err != nil {
		return nil, err
	}
	params, err := s.params.Get(ctx)
	if err != nil {
		return nil, err
	}
	return score.BuildRankings(users, axis, *params), nil
}

// GenerateSnapshot produces a point-in-time aggregate capture.
func (s *ScoreStore) GenerateSnapshot(ctx context.Context) (*domain.DailySnapshot, error) {
	users, err := s.ListUserScores(ctx)
	if err != nil {
		return nil, err
	}

	stats := score.Aggregate(users)
	return &domain.DailySnapshot{
		ID:                     uuid.NewString(),
		TakenAt:                time.Now().UTC(),
		TotalUsers:             stats.TotalUsers,
		TotalEconomicRaw:       stats.TotalEconomicRaw,
		TotalResonanceActions:  stats.TotalResonanceActions,
		AvgEconomicNormalized:  stats.AvgEconomicNormalized,
		AvgResonanceNormalized: stats.AvgResonanceNormalized,
		EconomicLevels:         stats.EconomicLevels,
		ResonanceLevels:        stats.ResonanceLevels,
	}, nil
}

// decodeUserScore rebuilds a UserScore from its persisted JSON columns.
func decodeUserScore(addr string, economicJSON, resonanceJSON []byte, lastUpdated time.Time) (*domain.UserScore, error) {
	user := domain.NewUserScore(addr)
	if err := json.Unmarshal(economicJSON, &user.Economic); err != nil {
		return nil, fmt.Errorf("unmarshal economic score: %w", err)
	}
	if err := json.Unmarshal(resonanceJSON, &user.Resonance); err != nil {
		return nil, fmt.Errorf("unmarshal resonance score: %w", err)
	}
	user.LastUpdated = lastUpdated
	return user, nil
}
