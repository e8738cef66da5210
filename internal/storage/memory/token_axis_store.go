package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// TokenAxisStore is an in-memory implementation of storage.TokenAxisStore.
type TokenAxisStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenAxis // keyed by lower-cased token address
}

// NewTokenAxisStore creates a new in-memory token axis store.
func NewTokenAxisStore() *TokenAxisStore {
	return &TokenAxisStore{data: make(map[string]*domain.TokenAxis)}
}

// Compile-time interface check.
var _ storage.TokenAxisStore = (*TokenAxisStore)(nil)

// Upsert creates or replaces a token's classification.
func (s *TokenAxisStore) Upsert(_ context.Context, axis *domain.TokenAxis) error {
	if axis == nil {
		return storage.ErrInvalidInput
	}
	a := *axis
	a.Token = domain.NormalizeAddress(a.Token)
	if err := a.Validate(); err != nil {
		return storage.ErrInvalidInput
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[a.Token] = &a
	return nil
}

// Get retrieves a token's classification.
func (s *TokenAxisStore) Get(_ context.Context, token string) (*domain.TokenAxis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[domain.NormalizeAddress(token)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	axisCopy := *a
	return &axisCopy, nil
}

// List retrieves all configured tokens, ordered by address ASC.
func (s *TokenAxisStore) List(_ context.Context) ([]*domain.TokenAxis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenAxis, 0, len(s.data))
	for _, a := range s.data {
		axisCopy := *a
		result = append(result, &axisCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Token < result[j].Token
	})
	return result, nil
}
