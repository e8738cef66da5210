package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
	pgstore "tipscore/internal/storage/postgres"
)

const (
	testTipper = "0x1111111111111111111111111111111111111111"
	testTenant = "0x2222222222222222222222222222222222222222"
	testToken  = "0x3333333333333333333333333333333333333333"
)

func tipEvent(seq int, amount string) *domain.TippedEvent {
	return &domain.TippedEvent{
		TxHash:      fmt.Sprintf("0x%064x", seq),
		LogIndex:    0,
		BlockNumber: uint64(seq),
		Timestamp:   time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC).Unix() + int64(seq),
		From:        testTipper,
		To:          testTenant,
		Token:       testToken,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestScoreStore_ApplyEventIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	params := pgstore.NewParamsStore(pool)
	store := pgstore.NewScoreStore(pool, params)

	event := tipEvent(1, "1000000000000000000")

	applied, err := store.ApplyEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)

	before, err := store.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, 1, before.Resonance.Count)

	applied, err = store.ApplyEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, applied)

	after, err := store.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, before.Resonance, after.Resonance)
}

func TestScoreStore_ApplyEventEconomicAxis(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	axes := pgstore.NewTokenAxisStore(pool)
	store := pgstore.NewScoreStore(pool, pgstore.NewParamsStore(pool))

	axis := domain.DefaultTokenAxis(testToken)
	axis.IsEconomic = true
	axis.Decimals = 6
	require.NoError(t, axes.Upsert(ctx, &axis))

	applied, err := store.ApplyEvent(ctx, tipEvent(1, "5000000"))
	require.NoError(t, err)
	require.True(t, applied)

	user, err := store.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.True(t, user.Economic.Raw.Equal(decimal.NewFromInt(5)))
	assert.True(t, user.Economic.PerToken[testToken].Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 0, user.Resonance.Count)
}

func TestScoreStore_GetUserScoreNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewScoreStore(pool, pgstore.NewParamsStore(pool))

	_, err := store.GetUserScore(context.Background(), testTipper)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoreStore_ListAndCount(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewScoreStore(pool, pgstore.NewParamsStore(pool))

	e1 := tipEvent(1, "1")
	e1.From = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	e2 := tipEvent(2, "1")
	e2.From = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	for _, e := range []*domain.TippedEvent{e1, e2} {
		applied, err := store.ApplyEvent(ctx, e)
		require.NoError(t, err)
		require.True(t, applied)
	}

	users, err := store.ListUserScores(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, e2.From, users[0].Address)
	assert.Equal(t, e1.From, users[1].Address)

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScoreStore_StreakAcrossEvents(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewScoreStore(pool, pgstore.NewParamsStore(pool))

	for d := 0; d < 3; d++ {
		e := tipEvent(d+1, "1")
		e.Timestamp = time.Date(2025, time.March, 1+d, 12, 0, 0, 0, time.UTC).Unix()
		applied, err := store.ApplyEvent(ctx, e)
		require.NoError(t, err)
		require.True(t, applied)
	}

	user, err := store.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, 3, user.Resonance.Count)
	assert.Equal(t, 3, user.Resonance.Streak)
	assert.Equal(t, 3, user.Resonance.LongestStreak)
}

func TestScoreStore_GenerateRankingsAndSnapshot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewScoreStore(pool, pgstore.NewParamsStore(pool))

	e1 := tipEvent(1, "1")
	e2 := tipEvent(2, "1")
	e2.From = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	e2.Timestamp = e1.Timestamp + 86400

	for _, e := range []*domain.TippedEvent{e1, e2} {
		applied, err := store.ApplyEvent(ctx, e)
		require.NoError(t, err)
		require.True(t, applied)
	}

	entries, err := store.GenerateRankings(ctx, domain.AxisResonance)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)

	snap, err := store.GenerateSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalUsers)
	assert.Equal(t, 2, snap.TotalResonanceActions)
	assert.NotEmpty(t, snap.ID)
}
