package ratelimit

import (
	"context"
	"sync"
)

// CounterStore is the pluggable backing counter for a limiter. Incr must be
// atomic per (key, window) so two concurrent callers can never both observe
// an under-limit count and both pass the threshold.
type CounterStore interface {
	// Incr increments the counter for key in the given window and returns
	// the new count.
	Incr(ctx context.Context, key string, window int64) (int64, error)
	// Get returns the current count for key in the given window.
	Get(ctx context.Context, key string, window int64) (int64, error)
	// Close releases backing resources.
	Close() error
}

type memCounter struct {
	window int64
	count  int64
}

// MemoryStore is the in-process fallback counter. It is correct for a
// single process only; counts are not shared across instances.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memCounter)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[key]
	if c == nil || c.window != window {
		c = &memCounter{window: window}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

func (s *MemoryStore) Get(_ context.Context, key string, window int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[key]
	if c == nil || c.window != window {
		return 0, nil
	}
	return c.count, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]*memCounter)
	return nil
}
