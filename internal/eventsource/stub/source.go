package stub

import (
	"context"
	"sort"
	"sync"

	"tipscore/internal/domain"
)

// Source is a deterministic in-memory event source for testing the
// indexer. Backfill serves from a fixed event set, Subscribe from pushed
// events.
type Source struct {
	mu     sync.Mutex
	events []*domain.ChainEvent
	head   uint64

	// BackfillErr, when set, fails the next Backfill call once.
	BackfillErr error
	// SubscribeErr, when set, fails every Subscribe call.
	SubscribeErr error

	live   chan *domain.ChainEvent
	liveMu sync.Mutex
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{
		live: make(chan *domain.ChainEvent, 256),
	}
}

// AddEvents seeds historical events served by Backfill.
func (s *Source) AddEvents(events ...*domain.ChainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	for _, e := range events {
		if e.BlockNumber > s.head {
			s.head = e.BlockNumber
		}
	}
}

// SetHead overrides the reported head block.
func (s *Source) SetHead(head uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = head
}

// Push delivers an event to the live subscription.
func (s *Source) Push(event *domain.ChainEvent) {
	s.liveMu.Lock()
	live := s.live
	s.liveMu.Unlock()
	live <- event
}

// CloseLive drops the current live stream. A fresh channel backs the
// next Subscribe call, so reconnect flows can be driven end to end.
func (s *Source) CloseLive() {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	close(s.live)
	s.live = make(chan *domain.ChainEvent, 256)
}

// HeadBlock returns the configured head.
func (s *Source) HeadBlock(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

// Backfill returns seeded events within [from, to] in block then
// log-index order.
func (s *Source) Backfill(_ context.Context, from, to uint64) ([]*domain.ChainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BackfillErr != nil {
		err := s.BackfillErr
		s.BackfillErr = nil
		return nil, err
	}

	var out []*domain.ChainEvent
	for _, e := range s.events {
		if e.BlockNumber >= from && e.BlockNumber <= to {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

// Subscribe returns the live channel.
func (s *Source) Subscribe(ctx context.Context) (<-chan *domain.ChainEvent, error) {
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}

	s.liveMu.Lock()
	live := s.live
	s.liveMu.Unlock()

	out := make(chan *domain.ChainEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-live:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
