package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists audit events. Events are never updated.
type Store interface {
	Append(ctx context.Context, e Event) error
	Query(ctx context.Context, f Filter, p PageRequest) (Page[Event], error)
	Count(ctx context.Context, f Filter) (int, error)

	// DeleteBefore removes events that occurred before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, f Filter, p PageRequest) (Page[Event], error) {
	if err := ctx.Err(); err != nil {
		return Page[Event]{}, err
	}
	p = p.Normalize()
	matched := s.filter(f)

	// Newest first; ULIDs break ties in insertion order.
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	lo := min(p.Offset(), total)
	hi := min(lo+p.Size, total)
	return NewPage(matched[lo:hi:hi], p, total), nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.filter(f)), nil
}

// DeleteBefore implements Store.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	for _, e := range s.events {
		if !e.OccurredAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	n := len(s.events) - len(kept)
	clear(s.events[len(kept):])
	s.events = kept
	return n, nil
}

// All returns every event in insertion order.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

func (s *MemoryStore) filter(f Filter) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}
