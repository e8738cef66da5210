// Package indexer orchestrates the event pipeline: chunked backfill from
// the last checkpoint, then a live subscription, reconnecting and
// re-backfilling any gap on stream failures.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tipscore/internal/domain"
	"tipscore/internal/eventsource"
	"tipscore/internal/observability"
	"tipscore/internal/storage"
)

// State is the indexer lifecycle state.
type State string

const (
	StateStarting     State = "STARTING"
	StateBackfilling  State = "BACKFILLING"
	StateLive         State = "LIVE"
	StateReconnecting State = "RECONNECTING"
	StateStopped      State = "STOPPED"
)

// AllStates lists every lifecycle state, for the state gauge.
var AllStates = []string{
	string(StateStarting), string(StateBackfilling), string(StateLive),
	string(StateReconnecting), string(StateStopped),
}

// Default configuration values.
const (
	DefaultChunkSize         = 2000
	DefaultConfirmations     = 12
	DefaultReconnectDelay    = 1 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second

	// tipFlushBatch bounds the pending analytics batch.
	tipFlushBatch = 100
)

// Source produces decoded chain events.
type Source interface {
	// HeadBlock returns the node's current head block number.
	HeadBlock(ctx context.Context) (uint64, error)

	// Backfill fetches all events in [from, to], ordered by block then
	// log index.
	Backfill(ctx context.Context, from, to uint64) ([]*domain.ChainEvent, error)

	// Subscribe opens a live event stream.
	Subscribe(ctx context.Context) (<-chan *domain.ChainEvent, error)
}

// Indexer drives events from a Source into the score stores.
type Indexer struct {
	source      Source
	scores      storage.ScoreStore
	axes        storage.TokenAxisStore
	params      storage.ParamsStore
	checkpoints storage.CheckpointStore
	tips        storage.TipArchive // optional, best-effort

	genesisBlock      uint64
	chunkSize         uint64
	confirmations     uint64
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	logger            *log.Logger

	stateMu sync.RWMutex
	state   State

	// pendingTips batches applied tips for the analytics archive.
	pendingTips []*domain.TippedEvent

	// lastCheckpoint is the highest checkpoint saved this run; live
	// events must never move it backwards. Touched only from the Run
	// goroutine.
	lastCheckpoint uint64
	haveCheckpoint bool
}

// Options contains configuration for creating an Indexer.
type Options struct {
	Source      Source
	Scores      storage.ScoreStore
	Axes        storage.TokenAxisStore
	Params      storage.ParamsStore
	Checkpoints storage.CheckpointStore
	Tips        storage.TipArchive // optional

	GenesisBlock      uint64
	ChunkSize         uint64        // Default: 2000 blocks per backfill request
	Confirmations     uint64        // Default: 12 - blocks behind head treated as settled
	ReconnectDelay    time.Duration // Default: 1s
	MaxReconnectDelay time.Duration // Default: 30s
	Logger            *log.Logger
}

// New creates a new Indexer.
func New(opts Options) (*Indexer, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.Scores == nil || opts.Axes == nil || opts.Params == nil || opts.Checkpoints == nil {
		return nil, fmt.Errorf("score, axis, params and checkpoint stores are required")
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	confirmations := opts.Confirmations
	if confirmations == 0 {
		confirmations = DefaultConfirmations
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay == 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	maxReconnectDelay := opts.MaxReconnectDelay
	if maxReconnectDelay == 0 {
		maxReconnectDelay = DefaultMaxReconnectDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Indexer{
		source:            opts.Source,
		scores:            opts.Scores,
		axes:              opts.Axes,
		params:            opts.Params,
		checkpoints:       opts.Checkpoints,
		tips:              opts.Tips,
		genesisBlock:      opts.GenesisBlock,
		chunkSize:         chunkSize,
		confirmations:     confirmations,
		reconnectDelay:    reconnectDelay,
		maxReconnectDelay: maxReconnectDelay,
		logger:            logger,
		state:             StateStarting,
	}, nil
}

// State returns the current lifecycle state.
func (ix *Indexer) State() State {
	ix.stateMu.RLock()
	defer ix.stateMu.RUnlock()
	return ix.state
}

func (ix *Indexer) setState(s State) {
	ix.stateMu.Lock()
	ix.state = s
	ix.stateMu.Unlock()
	observability.SetIndexerState(string(s), AllStates)
}

// Run drives the full pipeline until the context is cancelled. On stream
// failures it reconnects with bounded exponential backoff and re-backfills
// the gap from the last checkpoint.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.setState(StateStarting)
	ix.logger.Println("[indexer] starting")

	defer func() {
		ix.flushTips(context.Background())
		ix.setState(StateStopped)
		ix.logger.Println("[indexer] stopped")
	}()

	delay := ix.reconnectDelay
	for {
		if err := ix.catchUp(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			ix.logger.Printf("[indexer] backfill failed: %v, retrying in %v", err, delay)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay = nextDelay(delay, ix.maxReconnectDelay)
			continue
		}
		delay = ix.reconnectDelay

		err := ix.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ix.setState(StateReconnecting)
		observability.RecordReconnect()
		ix.logger.Printf("[indexer] live stream ended: %v, reconnecting in %v", err, delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay, ix.maxReconnectDelay)
	}
}

// catchUp backfills from the last checkpoint to the settled head.
func (ix *Indexer) catchUp(ctx context.Context) error {
	ix.setState(StateBackfilling)

	start, err := ix.resumeBlock(ctx)
	if err != nil {
		return err
	}

	head, err := ix.source.HeadBlock(ctx)
	if err != nil {
		return err
	}
	if head < ix.confirmations {
		return nil
	}
	target := head - ix.confirmations
	if start > target {
		return nil
	}

	ix.logger.Printf("[indexer] backfilling blocks %d..%d (head %d)", start, target, head)
	return ix.Backfill(ctx, start, target)
}

// Backfill applies all events in [from, to] in chunked ranges, saving the
// checkpoint after each chunk. Also used directly by the one-shot
// backfill command.
func (ix *Indexer) Backfill(ctx context.Context, from, to uint64) error {
	for chunkStart := from; chunkStart <= to; chunkStart += ix.chunkSize {
		chunkEnd := chunkStart + ix.chunkSize - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		events, err := ix.source.Backfill(ctx, chunkStart, chunkEnd)
		if err != nil {
			return err
		}
		observability.RecordBackfillChunk()

		for _, event := range events {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := ix.applyEvent(ctx, event); err != nil {
				return err
			}
		}

		ix.flushTips(ctx)
		if err := ix.saveCheckpoint(ctx, chunkEnd); err != nil {
			return err
		}
	}
	return nil
}

// stream consumes the live subscription until it ends.
func (ix *Indexer) stream(ctx context.Context) error {
	events, err := ix.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	ix.setState(StateLive)
	ix.logger.Println("[indexer] live")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return errors.New("event stream closed")
			}
			if err := ix.applyEvent(ctx, event); err != nil {
				return err
			}
			ix.flushTips(ctx)
			// The block may carry more logs after this one, so only
			// blocks strictly below it are known complete. A stream
			// drop mid-block then re-backfills the whole block and
			// dedupe absorbs the replayed logs.
			if event.BlockNumber > 0 {
				if err := ix.saveCheckpoint(ctx, event.BlockNumber-1); err != nil {
					return err
				}
			}
		}
	}
}

// applyEvent routes one decoded event to its store.
func (ix *Indexer) applyEvent(ctx context.Context, event *domain.ChainEvent) error {
	switch event.Kind {
	case domain.EventKindTipped:
		applied, err := ix.scores.ApplyEvent(ctx, event.Tipped)
		if err != nil {
			return fmt.Errorf("apply tip %s: %w", event.Tipped.Key(), err)
		}
		if !applied {
			observability.RecordDuplicateSkipped()
			return nil
		}
		observability.RecordEventApplied(string(event.Kind))
		if ix.tips != nil {
			ix.pendingTips = append(ix.pendingTips, event.Tipped)
			if len(ix.pendingTips) >= tipFlushBatch {
				ix.flushTips(ctx)
			}
		}
		return nil

	case domain.EventKindParamsUpdated:
		// On-chain updates are authoritative: last write wins.
		if err := ix.params.Update(ctx, event.Params, 0); err != nil {
			return fmt.Errorf("apply params update at block %d: %w", event.BlockNumber, err)
		}
		observability.RecordEventApplied(string(event.Kind))
		return nil

	case domain.EventKindAxisUpdated:
		if err := ix.axes.Upsert(ctx, event.TokenAxis); err != nil {
			return fmt.Errorf("apply axis update for %s: %w", event.TokenAxis.Token, err)
		}
		observability.RecordEventApplied(string(event.Kind))
		return nil

	default:
		return fmt.Errorf("%w: unknown event kind %q", eventsource.ErrInvalidEvent, event.Kind)
	}
}

// flushTips writes the pending analytics batch. Best-effort: archive
// failures are logged and the batch is dropped, never blocking scoring.
func (ix *Indexer) flushTips(ctx context.Context) {
	if ix.tips == nil || len(ix.pendingTips) == 0 {
		return
	}
	if err := ix.tips.InsertTips(ctx, ix.pendingTips); err != nil {
		ix.logger.Printf("[indexer] tip archive write failed (%d events dropped): %v", len(ix.pendingTips), err)
	}
	ix.pendingTips = ix.pendingTips[:0]
}

// resumeBlock determines where backfill resumes.
func (ix *Indexer) resumeBlock(ctx context.Context) (uint64, error) {
	cp, err := ix.checkpoints.Get(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ix.genesisBlock, nil
		}
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	ix.lastCheckpoint = cp.LastBlock
	ix.haveCheckpoint = true
	return cp.LastBlock + 1, nil
}

// saveCheckpoint persists a new high-water mark. Lower blocks are a
// no-op: a replayed live event must not rewind past a finished backfill.
func (ix *Indexer) saveCheckpoint(ctx context.Context, block uint64) error {
	if ix.haveCheckpoint && block <= ix.lastCheckpoint {
		return nil
	}
	if err := ix.checkpoints.Save(ctx, block); err != nil {
		return fmt.Errorf("save checkpoint at block %d: %w", block, err)
	}
	ix.lastCheckpoint = block
	ix.haveCheckpoint = true
	observability.UpdateCheckpoint(block)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}
