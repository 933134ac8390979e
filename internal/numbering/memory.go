package numbering

import (
	"context"
	"sync"
)

// MemorySequencer is the in-process Sequencer implementation, used when the
// datastore-native counter is unavailable and in tests. Counters are guarded
// by a mutex, so values are unique within a single process only.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[bucket]int64
}

type bucket struct {
	companyID int64
	kind      Kind
	year      int
}

// NewMemorySequencer constructs an empty in-process sequencer.
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[bucket]int64)}
}

// NextSeq increments and returns the counter for the bucket.
func (s *MemorySequencer) NextSeq(_ context.Context, companyID int64, kind Kind, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bucket{companyID: companyID, kind: kind, year: year}
	s.counters[b]++
	return s.counters[b], nil
}

// Probe always succeeds for the in-process implementation.
func (s *MemorySequencer) Probe(context.Context) error {
	return nil
}
