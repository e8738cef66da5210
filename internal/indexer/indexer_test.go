package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipscore/internal/domain"
	"tipscore/internal/eventsource"
	"tipscore/internal/eventsource/stub"
	"tipscore/internal/storage"
	"tipscore/internal/storage/memory"
)

const (
	testTipper = "0x1111111111111111111111111111111111111111"
	testTenant = "0x2222222222222222222222222222222222222222"
	testToken  = "0x3333333333333333333333333333333333333333"
)

type fixture struct {
	source      *stub.Source
	scores      *memory.ScoreStore
	axes        *memory.TokenAxisStore
	params      *memory.ParamsStore
	checkpoints *memory.CheckpointStore
	ix          *Indexer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		source:      stub.NewSource(),
		axes:        memory.NewTokenAxisStore(),
		params:      memory.NewParamsStore(),
		checkpoints: memory.NewCheckpointStore(),
	}
	f.scores = memory.NewScoreStore(f.axes, f.params)

	opts.Source = f.source
	opts.Scores = f.scores
	opts.Axes = f.axes
	opts.Params = f.params
	opts.Checkpoints = f.checkpoints

	ix, err := New(opts)
	require.NoError(t, err)
	f.ix = ix
	return f
}

func tipAt(block uint64, seq int) *domain.ChainEvent {
	return &domain.ChainEvent{
		Kind:        domain.EventKindTipped,
		BlockNumber: block,
		TxHash:      fmt.Sprintf("0x%064x", seq),
		LogIndex:    0,
		Tipped: &domain.TippedEvent{
			TxHash:      fmt.Sprintf("0x%064x", seq),
			LogIndex:    0,
			BlockNumber: block,
			Timestamp:   1700000000 + int64(seq),
			From:        testTipper,
			To:          testTenant,
			Token:       testToken,
			Amount:      decimal.NewFromInt(1),
		},
	}
}

func TestNew_RequiresSourceAndStores(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Source: stub.NewSource()})
	assert.Error(t, err)
}

func TestIndexer_BackfillAppliesAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{ChunkSize: 10})

	f.source.AddEvents(tipAt(5, 1), tipAt(15, 2))

	require.NoError(t, f.ix.Backfill(ctx, 0, 19))

	user, err := f.scores.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Resonance.Count)

	cp, err := f.checkpoints.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(19), cp.LastBlock)
}

func TestIndexer_BackfillReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.source.AddEvents(tipAt(5, 1))

	require.NoError(t, f.ix.Backfill(ctx, 0, 10))
	before, err := f.scores.GetUserScore(ctx, testTipper)
	require.NoError(t, err)

	// Re-running the same range must not double-count.
	require.NoError(t, f.ix.Backfill(ctx, 0, 10))
	after, err := f.scores.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIndexer_BackfillPropagatesSourceErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.source.AddEvents(tipAt(5, 1))
	f.source.BackfillErr = errors.New("rpc down")

	assert.Error(t, f.ix.Backfill(ctx, 0, 10))

	_, err := f.checkpoints.Get(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexer_AppliesParamsUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.source.AddEvents(&domain.ChainEvent{
		Kind:        domain.EventKindParamsUpdated,
		BlockNumber: 3,
		TxHash:      fmt.Sprintf("0x%064x", 1),
		Params: &domain.ScoreParams{
			WeightEconomic:  0.7,
			WeightResonance: 0.3,
			Curve:           domain.CurveSqrt,
		},
	})

	require.NoError(t, f.ix.Backfill(ctx, 0, 5))

	params, err := f.params.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.7, params.WeightEconomic)
	assert.Equal(t, domain.CurveSqrt, params.Curve)
}

func TestIndexer_AppliesAxisUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	axis := domain.DefaultTokenAxis(testToken)
	axis.IsEconomic = true
	f.source.AddEvents(&domain.ChainEvent{
		Kind:        domain.EventKindAxisUpdated,
		BlockNumber: 3,
		TxHash:      fmt.Sprintf("0x%064x", 1),
		TokenAxis:   &axis,
	})

	require.NoError(t, f.ix.Backfill(ctx, 0, 5))

	stored, err := f.axes.Get(ctx, testToken)
	require.NoError(t, err)
	assert.True(t, stored.IsEconomic)
}

func TestIndexer_RejectsUnknownEventKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.source.AddEvents(&domain.ChainEvent{Kind: "BOGUS", BlockNumber: 1})

	err := f.ix.Backfill(ctx, 0, 5)
	assert.ErrorIs(t, err, eventsource.ErrInvalidEvent)
}

func TestIndexer_RunCatchesUpThenStreams(t *testing.T) {
	f := newFixture(t, Options{Confirmations: 1, ChunkSize: 100})

	f.source.AddEvents(tipAt(2, 1))
	f.source.SetHead(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- f.ix.Run(ctx) }()

	// Wait for backfill to land, then for the live stream.
	require.Eventually(t, func() bool {
		u, err := f.scores.GetUserScore(ctx, testTipper)
		return err == nil && u.Resonance.Count == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.ix.State() == StateLive
	}, 2*time.Second, 10*time.Millisecond)

	// Block 11 may still carry more logs, so the checkpoint stops at 10.
	f.source.Push(tipAt(11, 2))
	require.Eventually(t, func() bool {
		cp, err := f.checkpoints.Get(context.Background())
		return err == nil && cp.LastBlock == 10
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("indexer did not stop after cancel")
	}
	assert.Equal(t, StateStopped, f.ix.State())
}

// tipLogAt is tipAt with an explicit log index, for multi-log blocks.
func tipLogAt(block uint64, logIndex uint32, seq int) *domain.ChainEvent {
	e := tipAt(block, seq)
	e.LogIndex = logIndex
	e.Tipped.LogIndex = logIndex
	return e
}

func TestIndexer_RunReplaysPartialBlockAfterStreamDrop(t *testing.T) {
	f := newFixture(t, Options{
		Confirmations:  1,
		ChunkSize:      100,
		ReconnectDelay: 5 * time.Millisecond,
	})
	f.source.AddEvents(tipAt(2, 1), tipAt(3, 2))
	f.source.SetHead(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- f.ix.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.ix.State() == StateLive
	}, 2*time.Second, 10*time.Millisecond)

	// Block 14 carries two logs and the stream drops between them.
	f.source.Push(tipLogAt(14, 0, 3))
	require.Eventually(t, func() bool {
		u, err := f.scores.GetUserScore(ctx, testTipper)
		return err == nil && u.Resonance.Count == 3
	}, 2*time.Second, 10*time.Millisecond)

	// The sibling log exists only in history; the reconnect backfill
	// must pick it up.
	f.source.AddEvents(tipLogAt(14, 0, 3), tipLogAt(14, 1, 4))
	f.source.SetHead(16)
	f.source.CloseLive()

	require.Eventually(t, func() bool {
		cp, err := f.checkpoints.Get(context.Background())
		return err == nil && cp.LastBlock == 15
	}, 2*time.Second, 10*time.Millisecond)

	u, err := f.scores.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, 4, u.Resonance.Count)

	cancel()
	<-runErr
}

func TestIndexer_RunDeduplicatesBackfillOverlap(t *testing.T) {
	f := newFixture(t, Options{Confirmations: 1, ChunkSize: 100})
	f.source.AddEvents(tipAt(5, 1))
	f.source.SetHead(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- f.ix.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.ix.State() == StateLive
	}, 2*time.Second, 10*time.Millisecond)

	// The overlap window redelivers the backfilled event on the live
	// stream before new blocks arrive.
	f.source.Push(tipAt(5, 1))
	f.source.Push(tipAt(11, 2))

	require.Eventually(t, func() bool {
		cp, err := f.checkpoints.Get(context.Background())
		return err == nil && cp.LastBlock == 10
	}, 2*time.Second, 10*time.Millisecond)

	u, err := f.scores.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, 2, u.Resonance.Count)

	cancel()
	<-runErr
}

func TestIndexer_RunResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Confirmations: 1, ChunkSize: 100})

	// Block 2 is already behind the checkpoint; only block 5 is new.
	require.NoError(t, f.checkpoints.Save(ctx, 3))
	f.source.AddEvents(tipAt(2, 1), tipAt(5, 2))
	f.source.SetHead(10)

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- f.ix.Run(runCtx) }()

	require.Eventually(t, func() bool {
		u, err := f.scores.GetUserScore(ctx, testTipper)
		return err == nil && u.Resonance.Count == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-runErr

	// The skipped event was never applied.
	u, err := f.scores.GetUserScore(ctx, testTipper)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Resonance.Count)
}

func TestIndexer_RunRetriesSubscribeFailures(t *testing.T) {
	f := newFixture(t, Options{
		Confirmations:  1,
		ReconnectDelay: 5 * time.Millisecond,
	})
	f.source.SetHead(10)
	f.source.SubscribeErr = eventsource.ErrSourceUnavailable

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- f.ix.Run(ctx) }()

	// Without a live stream the loop keeps cycling through reconnects.
	require.Eventually(t, func() bool {
		return f.ix.State() == StateReconnecting || f.ix.State() == StateBackfilling
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("indexer did not stop after cancel")
	}
}
