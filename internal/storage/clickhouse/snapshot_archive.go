package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tipscore/internal/domain"
	"tipscore/internal/observability"
	"tipscore/internal/storage"
)

// SnapshotArchive implements storage.SnapshotArchive using ClickHouse.
// Level distributions are stored as JSON strings; the snapshot history is
// append-only and queried by taken_at.
type SnapshotArchive struct {
	conn *Conn
}

// NewSnapshotArchive creates a new SnapshotArchive.
func NewSnapshotArchive(conn *Conn) *SnapshotArchive {
	return &SnapshotArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotArchive = (*SnapshotArchive)(nil)

// Archive appends a snapshot to the history.
func (s *SnapshotArchive) Archive(ctx context.Context, snap *domain.DailySnapshot) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}

	economicLevels, err := json.Marshal(snap.EconomicLevels)
	if err != nil {
		return fmt.Errorf("marshal economic levels: %w", err)
	}
	resonanceLevels, err := json.Marshal(snap.ResonanceLevels)
	if err != nil {
		return fmt.Errorf("marshal resonance levels: %w", err)
	}

	start := time.Now()
	err = s.conn.Exec(ctx, `
		INSERT INTO daily_snapshots (
			id, taken_at, total_users, total_economic_raw,
			total_resonance_actions, avg_economic_normalized,
			avg_resonance_normalized, economic_levels, resonance_levels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID, snap.TakenAt, uint64(snap.TotalUsers), snap.TotalEconomicRaw.String(),
		uint64(snap.TotalResonanceActions), snap.AvgEconomicNormalized,
		snap.AvgResonanceNormalized, string(economicLevels), string(resonanceLevels),
	)
	observability.RecordDBQuery("clickhouse", "insert_snapshot", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest retrieves the most recently archived snapshot.
func (s *SnapshotArchive) Latest(ctx context.Context) (*domain.DailySnapshot, error) {
	query := `
		SELECT id, taken_at, total_users, total_economic_raw,
			total_resonance_actions, avg_economic_normalized,
			avg_resonance_normalized, economic_levels, resonance_levels
		FROM daily_snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`

	var snap domain.DailySnapshot
	var totalUsers, totalActions uint64
	var totalRaw, economicLevels, resonanceLevels string

	err := s.conn.QueryRow(ctx, query).Scan(
		&snap.ID, &snap.TakenAt, &totalUsers, &totalRaw,
		&totalActions, &snap.AvgEconomicNormalized,
		&snap.AvgResonanceNormalized, &economicLevels, &resonanceLevels,
	)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	snap.TotalUsers = int(totalUsers)
	snap.TotalResonanceActions = int(totalActions)

	snap.TotalEconomicRaw, err = decimal.NewFromString(totalRaw)
	if err != nil {
		return nil, fmt.Errorf("parse total economic raw: %w", err)
	}
	if err := json.Unmarshal([]byte(economicLevels), &snap.EconomicLevels); err != nil {
		return nil, fmt.Errorf("unmarshal economic levels: %w", err)
	}
	if err := json.Unmarshal([]byte(resonanceLevels), &snap.ResonanceLevels); err != nil {
		return nil, fmt.Errorf("unmarshal resonance levels: %w", err)
	}
	return &snap, nil
}
