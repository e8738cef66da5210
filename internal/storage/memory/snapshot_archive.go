package memory

import (
	"context"
	"sync"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// SnapshotArchive is an in-memory implementation of storage.SnapshotArchive.
type SnapshotArchive struct {
	mu        sync.RWMutex
	snapshots []*domain.DailySnapshot
}

// NewSnapshotArchive creates a new in-memory snapshot archive.
func NewSnapshotArchive() *SnapshotArchive {
	return &SnapshotArchive{}
}

// Compile-time interface check.
var _ storage.SnapshotArchive = (*SnapshotArchive)(nil)

// Archive appends a snapshot to the history.
func (s *SnapshotArchive) Archive(_ context.Context, snap *domain.DailySnapshot) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapCopy := *snap
	s.snapshots = append(s.snapshots, &snapCopy)
	return nil
}

// Latest retrieves the most recently archived snapshot.
func (s *SnapshotArchive) Latest(_ context.Context) (*domain.DailySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, storage.ErrNotFound
	}
	snapCopy := *s.snapshots[len(s.snapshots)-1]
	return &snapCopy, nil
}
