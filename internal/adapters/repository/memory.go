package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/sitstraight/pkg/metrics"
)

const defaultMemoryCapacity = 10000

// MemoryStore keeps the most recent samples in a ring buffer.
// Samples are assumed to arrive roughly in time order; History sorts anyway.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	ring     []Sample
	head     int // index of the oldest sample once the ring is full
	ids      map[string]struct{}
	closed   bool
}

// NewMemoryStore constructs an in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{capacity: defaultMemoryCapacity}
	for _, opt := range opts {
		opt(s)
	}
	s.ring = make([]Sample, 0, s.capacity)
	s.ids = make(map[string]struct{}, s.capacity)
	return s
}

// Save implements Store. When full, the oldest sample is evicted.
func (s *MemoryStore) Save(_ context.Context, smp Sample) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, dup := s.ids[smp.ID]; dup {
		return ErrDuplicate
	}
	if len(s.ring) < s.capacity {
		s.ring = append(s.ring, smp)
	} else {
		delete(s.ids, s.ring[s.head].ID)
		s.ring[s.head] = smp
		s.head = (s.head + 1) % s.capacity
	}
	s.ids[smp.ID] = struct{}{}

	metrics.UpdateStoreRecords(len(s.ring))
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ring) == 0 {
		return Sample{}, ErrNotFound
	}
	all := s.ordered()
	latest := all[0]
	for _, smp := range all[1:] {
		if smp.Timestamp >= latest.Timestamp {
			latest = smp
		}
	}
	return latest, nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, q Query) ([]Sample, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	lo, hi, limit, err := q.bounds()
	if err != nil {
		return nil, err
	}
	out := s.between(lo, hi)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Summary implements Store. It covers every retained sample since the cutoff.
func (s *MemoryStore) Summary(_ context.Context, since time.Time) (Summary, error) {
	lo, hi, _, err := Query{Since: since}.bounds()
	if err != nil {
		return Summary{}, err
	}
	return Summarize(s.between(lo, hi)), nil
}

// between returns the samples in [lo, hi], oldest first.
func (s *MemoryStore) between(lo, hi float64) []Sample {
	s.mu.RLock()
	all := s.ordered()
	s.mu.RUnlock()

	out := make([]Sample, 0, len(all))
	for _, smp := range all {
		if smp.Timestamp >= lo && smp.Timestamp <= hi {
			out = append(out, smp)
		}
	}
	sortByTime(out)
	return out
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ring), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ordered returns a copy of the ring in insertion order. Callers hold mu.
func (s *MemoryStore) ordered() []Sample {
	out := make([]Sample, 0, len(s.ring))
	out = append(out, s.ring[s.head:]...)
	out = append(out, s.ring[:s.head]...)
	return out
}
