package memory

import (
	"context"
	"sync"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// ParamsStore is an in-memory implementation of storage.ParamsStore.
type ParamsStore struct {
	mu     sync.RWMutex
	params domain.ScoreParams
}

// NewParamsStore creates a new in-memory params store seeded with defaults.
func NewParamsStore() *ParamsStore {
	return &ParamsStore{params: domain.DefaultScoreParams()}
}

// Compile-time interface check.
var _ storage.ParamsStore = (*ParamsStore)(nil)

// Get retrieves the current scoring parameters.
func (s *ParamsStore) Get(_ context.Context) (*domain.ScoreParams, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.params
	return &p, nil
}

// Update validates and replaces the parameters.
func (s *ParamsStore) Update(_ context.Context, params *domain.ScoreParams, expectedVersion int64) error {
	if params == nil {
		return storage.ErrInvalidInput
	}
	if err := params.Validate(); err != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expectedVersion != 0 && s.params.LastUpdated.UnixMilli() != expectedVersion {
		return storage.ErrConflict
	}

	p := *params
	p.LastUpdated = time.Now().UTC()
	s.params = p
	return nil
}
