package clickhouse

import (
	"context"
	"fmt"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/observability"
	"tipscore/internal/storage"
)

// TipArchive implements storage.TipArchive using ClickHouse.
//
// The score_events table is the append-only audit trail of applied tips.
// MergeTree does not enforce uniqueness at insert time; the Postgres
// dedupe marker is the source of truth, so occasional replays here are
// collapsed at query time with GROUP BY when it matters.
type TipArchive struct {
	conn *Conn
}

// NewTipArchive creates a new TipArchive.
func NewTipArchive(conn *Conn) *TipArchive {
	return &TipArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TipArchive = (*TipArchive)(nil)

// InsertTips appends applied tip events.
func (s *TipArchive) InsertTips(ctx context.Context, events []*domain.TippedEvent) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_events (
			tx_hash, log_index, block_number, event_time,
			from_address, to_address, token_address, amount, action
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.TxHash, e.LogIndex, e.BlockNumber, e.Time(),
			e.From, e.To, e.Token, e.Amount.String(), e.ActionHint,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_tips", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
