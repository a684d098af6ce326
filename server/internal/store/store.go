package store

import (
	"sync"

	"github.com/gateload/gateload/pkg/types"
)

// Store is a thread-safe fixed-capacity FIFO of history records.
type Store struct {
	mu   sync.RWMutex
	buf  []types.HistoryRecord
	head int // index of the oldest record
	size int
}

// New creates a Store holding at most capacity records. A capacity below 1
// is raised to 1.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{buf: make([]types.HistoryRecord, capacity)}
}

// Append adds rec at the tail, evicting the oldest record when full.
func (s *Store) Append(rec types.HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := len(s.buf)
	if s.size < c {
		s.buf[(s.head+s.size)%c] = rec
		s.size++
		return
	}
	s.buf[s.head] = rec
	s.head = (s.head + 1) % c
}

// Snapshot returns a copy of every record, oldest first.
func (s *Store) Snapshot() []types.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.HistoryRecord, s.size)
	c := len(s.buf)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%c]
	}
	return out
}

// LatestFor returns the most recently appended record for cp, without
// deduplication.
func (s *Store) LatestFor(cp string) (types.HistoryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := len(s.buf)
	for i := s.size - 1; i >= 0; i-- {
		rec := s.buf[(s.head+i)%c]
		if rec.CheckpointID == cp {
			return rec, true
		}
	}
	return types.HistoryRecord{}, false
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Cap returns the buffer capacity.
func (s *Store) Cap() int { return len(s.buf) }
