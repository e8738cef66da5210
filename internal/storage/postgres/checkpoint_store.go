package postgres

import (
	"context"
	"fmt"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
// A singleton row (id = 1) holds the last fully-applied block.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get retrieves the last committed checkpoint.
func (s *CheckpointStore) Get(ctx context.Context) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var lastBlock int64

	err := s.pool.QueryRow(ctx,
		`SELECT last_block, updated_at FROM indexer_checkpoint WHERE id = 1`,
	).Scan(&lastBlock, &cp.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	cp.LastBlock = uint64(lastBlock)
	return &cp, nil
}

// Save records the last fully-applied block.
func (s *CheckpointStore) Save(ctx context.Context, lastBlock uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_checkpoint (id, last_block, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			last_block = EXCLUDED.last_block,
			updated_at = EXCLUDED.updated_at
	`, int64(lastBlock), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
