package eventsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipscore/internal/chain"
	"tipscore/internal/domain"
)

const testContract = "0x4444444444444444444444444444444444444444"

// fakeRPC serves canned logs and timestamps, counting lookups.
type fakeRPC struct {
	head       uint64
	logs       []chain.Log
	logsErr    error
	timestamps map[uint64]int64
	tsCalls    int
}

func (f *fakeRPC) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeRPC) GetLogs(context.Context, chain.FilterQuery) ([]chain.Log, error) {
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return f.logs, nil
}

func (f *fakeRPC) BlockTimestamp(_ context.Context, blockNumber uint64) (int64, error) {
	f.tsCalls++
	ts, ok := f.timestamps[blockNumber]
	if !ok {
		return 0, errors.New("unknown block")
	}
	return ts, nil
}

type fakeSubscriber struct {
	ch  chan chain.Log
	err error
}

func (f *fakeSubscriber) SubscribeLogs(context.Context, chain.LogsFilter) (<-chan chain.Log, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(AdapterOptions{Contract: testContract})
	assert.Error(t, err)

	_, err = NewAdapter(AdapterOptions{RPC: &fakeRPC{}, Contract: "bogus"})
	assert.Error(t, err)

	a, err := NewAdapter(AdapterOptions{RPC: &fakeRPC{}, Contract: testContract})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestAdapter_Backfill(t *testing.T) {
	removed := tippedLog(2)
	removed.Removed = true
	undecodable := tippedLog(3)
	undecodable.Data = "0xabc"

	rpc := &fakeRPC{
		logs:       []chain.Log{tippedLog(1), removed, undecodable},
		timestamps: map[uint64]int64{100: 1700000000},
	}
	a, err := NewAdapter(AdapterOptions{RPC: rpc, Contract: testContract})
	require.NoError(t, err)

	events, err := a.Backfill(context.Background(), 0, 200)
	require.NoError(t, err)

	// Removed and undecodable logs are dropped, not fatal.
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventKindTipped, events[0].Kind)
	assert.True(t, events[0].Tipped.Amount.Equal(decimal.NewFromInt(1)))
}

func TestAdapter_BackfillCachesTimestamps(t *testing.T) {
	rpc := &fakeRPC{
		logs:       []chain.Log{tippedLog(1), tippedLog(2)},
		timestamps: map[uint64]int64{100: 1700000000},
	}
	a, err := NewAdapter(AdapterOptions{RPC: rpc, Contract: testContract})
	require.NoError(t, err)

	_, err = a.Backfill(context.Background(), 0, 200)
	require.NoError(t, err)

	// Both logs are in block 100, one lookup serves both.
	assert.Equal(t, 1, rpc.tsCalls)
}

func TestAdapter_BackfillUnavailable(t *testing.T) {
	rpc := &fakeRPC{logsErr: errors.New("rpc down")}
	a, err := NewAdapter(AdapterOptions{RPC: rpc, Contract: testContract})
	require.NoError(t, err)

	_, err = a.Backfill(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestAdapter_BackfillTimestampFailureFailsRange(t *testing.T) {
	// No canned timestamps: every lookup fails like a flaky RPC node.
	// The valid log must not be skipped and checkpointed past.
	rpc := &fakeRPC{logs: []chain.Log{tippedLog(1)}}
	a, err := NewAdapter(AdapterOptions{RPC: rpc, Contract: testContract})
	require.NoError(t, err)

	events, err := a.Backfill(context.Background(), 0, 200)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Empty(t, events)
}

func TestAdapter_SubscribeTimestampFailureEndsStream(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan chain.Log, 1)}
	rpc := &fakeRPC{} // timestamp lookups always fail
	a, err := NewAdapter(AdapterOptions{RPC: rpc, WS: sub, Contract: testContract})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := a.Subscribe(ctx)
	require.NoError(t, err)

	sub.ch <- tippedLog(1)

	// The stream ends instead of dropping the log, so the caller
	// re-backfills the gap.
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("event channel not closed")
	}
}

func TestAdapter_SubscribeWithoutWS(t *testing.T) {
	a, err := NewAdapter(AdapterOptions{RPC: &fakeRPC{}, Contract: testContract})
	require.NoError(t, err)

	_, err = a.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestAdapter_SubscribeForwardsDecodedEvents(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan chain.Log, 10)}
	rpc := &fakeRPC{timestamps: map[uint64]int64{100: 1700000000}}
	a, err := NewAdapter(AdapterOptions{RPC: rpc, WS: sub, Contract: testContract})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := a.Subscribe(ctx)
	require.NoError(t, err)

	sub.ch <- tippedLog(1)

	select {
	case event := <-events:
		assert.Equal(t, domain.EventKindTipped, event.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event forwarded")
	}

	// Closing the upstream stream closes the event channel.
	close(sub.ch)
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("event channel not closed")
	}
}

func TestAdapter_HeadBlock(t *testing.T) {
	a, err := NewAdapter(AdapterOptions{RPC: &fakeRPC{head: 42}, Contract: testContract})
	require.NoError(t, err)

	head, err := a.HeadBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), head)
}
