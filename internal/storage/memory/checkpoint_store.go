package memory

import (
	"context"
	"sync"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu         sync.RWMutex
	checkpoint *domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get retrieves the last committed checkpoint.
func (s *CheckpointStore) Get(_ context.Context) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.checkpoint == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.checkpoint
	return &cp, nil
}

// Save records the last fully-applied block.
func (s *CheckpointStore) Save(_ context.Context, lastBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoint = &domain.Checkpoint{
		LastBlock: lastBlock,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}
