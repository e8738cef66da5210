package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tipscore/internal/domain"
	"tipscore/internal/score"
	"tipscore/internal/storage"
)

// ScoreStore is an in-memory implementation of storage.ScoreStore.
// Writes are serialized by a single mutex; the dedupe marker and the new
// user state commit under the same lock, so partial application is never
// observable.
type ScoreStore struct {
	axes   storage.TokenAxisStore
	params storage.ParamsStore

	mu      sync.RWMutex
	users   map[string]*domain.UserScore // keyed by lower-cased address
	applied map[string]struct{}          // keyed by TippedEvent.Key()
}

// NewScoreStore creates a new in-memory score store. Axis classification and
// scoring parameters are read through the given stores at processing time.
func NewScoreStore(axes storage.TokenAxisStore, params storage.ParamsStore) *ScoreStore {
	return &ScoreStore{
		axes:    axes,
		params:  params,
		users:   make(map[string]*domain.UserScore),
		applied: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.ScoreStore = (*ScoreStore)(nil)

// ApplyEvent applies one tip event exactly once.
func (s *ScoreStore) ApplyEvent(ctx context.Context, event *domain.TippedEvent) (bool, error) {
	if event == nil {
		return false, storage.ErrInvalidInput
	}
	if err := event.Validate(); err != nil {
		return false, storage.ErrInvalidInput
	}

	axis, err := s.tokenAxis(ctx, event.Token)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.applied[event.Key()]; done {
		return false, nil
	}

	addr := domain.NormalizeAddress(event.From)
	user, ok := s.users[addr]
	if !ok {
		user = domain.NewUserScore(addr)
	} else {
		user = user.Clone()
	}

	switch score.Classify(event, axis) {
	case score.Economic:
		user.Economic = score.ApplyEconomic(user.Economic, event.Amount, event.Token, axis)
	case score.Resonance:
		user.Resonance = score.ApplyResonance(user.Resonance, score.ActionType(event), event.Time())
	}
	user.LastUpdated = event.Time()

	s.users[addr] = user
	s.applied[event.Key()] = struct{}{}
	return true, nil
}

// tokenAxis loads the processing-time classification, defaulting unknown
// tokens to the resonance axis.
func (s *ScoreStore) tokenAxis(ctx context.Context, token string) (domain.TokenAxis, error) {
	axis, err := s.axes.Get(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.DefaultTokenAxis(token), nil
		}
		return domain.TokenAxis{}, err
	}
	return *axis, nil
}

// GetUserScore retrieves the score state for an address.
func (s *ScoreStore) GetUserScore(_ context.Context, address string) (*domain.UserScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[domain.NormalizeAddress(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user.Clone(), nil
}

// ListUserScores retrieves all user scores, ordered by address ASC.
func (s *ScoreStore) ListUserScores(_ context.Context) ([]*domain.UserScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.UserScore, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// CountUsers returns the tracked-user population.
func (s *ScoreStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// GenerateRankings produces the ordered projection for one axis.
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
