package eventsource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"tipscore/internal/chain"
	"tipscore/internal/domain"
	"tipscore/internal/observability"
)

// RPCClient is the HTTP-side surface the adapter needs.
type RPCClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, q chain.FilterQuery) ([]chain.Log, error)
	BlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error)
}

// LogSubscriber is the WebSocket-side surface the adapter needs.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, filter chain.LogsFilter) (<-chan chain.Log, error)
}

// timestampCacheCap bounds the block-timestamp cache. Blocks in a backfill
// chunk repeat heavily, so a flat cap with full reset is enough.
const timestampCacheCap = 4096

// Adapter turns raw contract logs into decoded chain events. Logs that
// match the filter but fail to decode are counted and skipped, never
// retried. Transient lookup failures abort the chunk or stream instead,
// so the caller can retry without losing valid logs.
type Adapter struct {
	rpc      RPCClient
	ws       LogSubscriber
	contract string
	logger   *log.Logger

	tsMu    sync.Mutex
	tsCache map[uint64]int64
}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	RPC      RPCClient
	WS       LogSubscriber
	Contract string
	Logger   *log.Logger
}

// NewAdapter creates an event source adapter for one contract.
func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.RPC == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if !domain.ValidAddress(opts.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", opts.Contract)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Adapter{
		rpc:      opts.RPC,
		ws:       opts.WS,
		contract: domain.NormalizeAddress(opts.Contract),
		logger:   logger,
		tsCache:  make(map[uint64]int64),
	}, nil
}

// HeadBlock returns the node's current head block number.
func (a *Adapter) HeadBlock(ctx context.Context) (uint64, error) {
	head, err := a.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return head, nil
}

// Backfill fetches and decodes all events in [from, to], in block then
// log-index order. Undecodable logs are dropped; transient RPC failures
// fail the whole range.
func (a *Adapter) Backfill(ctx context.Context, from, to uint64) ([]*domain.ChainEvent, error) {
	logs, err := a.rpc.GetLogs(ctx, chain.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Address:   a.contract,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	events := make([]*domain.ChainEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		event, err := a.decode(ctx, lg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A failed timestamp lookup is infrastructure, not data:
			// the chunk must fail so the caller retries it, or the log
			// would be checkpointed past and lost.
			if errors.Is(err, ErrSourceUnavailable) {
				return nil, err
			}
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Subscribe opens a live event stream. The returned channel closes when
// the context is cancelled or the underlying subscription ends.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan *domain.ChainEvent, error) {
	if a.ws == nil {
		return nil, fmt.Errorf("%w: no websocket endpoint configured", ErrSourceUnavailable)
	}

	logCh, err := a.ws.SubscribeLogs(ctx, chain.LogsFilter{Address: a.contract})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	out := make(chan *domain.ChainEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case lg, ok := <-logCh:
				if !ok {
					return
				}
				if lg.Removed {
					continue
				}
				event, err := a.decode(ctx, lg)
				if err != nil {
					// Ending the stream hands the gap back to the
					// caller's reconnect backfill.
					if errors.Is(err, ErrSourceUnavailable) {
						return
					}
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// decode resolves the block timestamp and decodes one log.
func (a *Adapter) decode(ctx context.Context, lg chain.Log) (*domain.ChainEvent, error) {
	blockTime, err := a.blockTime(ctx, lg.BlockNumber)
	if err != nil {
		a.logger.Printf("[eventsource] block %d timestamp lookup failed: %v", lg.BlockNumber, err)
		return nil, err
	}

	event, err := DecodeLog(lg, blockTime)
	if err != nil {
		observability.RecordInvalidEvent()
		a.logger.Printf("[eventsource] skipping undecodable log %s:%d: %v", lg.TxHash, lg.LogIndex, err)
		return nil, err
	}
	return event, nil
}

// blockTime returns the cached block timestamp, fetching on miss.
func (a *Adapter) blockTime(ctx context.Context, blockNumber uint64) (int64, error) {
	a.tsMu.Lock()
	if ts, ok := a.tsCache[blockNumber]; ok {
		a.tsMu.Unlock()
		return ts, nil
	}
	a.tsMu.Unlock()

	ts, err := a.rpc.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	a.tsMu.Lock()
	if len(a.tsCache) >= timestampCacheCap {
		a.tsCache = make(map[uint64]int64)
	}
	a.tsCache[blockNumber] = ts
	a.tsMu.Unlock()

	return ts, nil
}
