package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

type window struct {
	stamps []time.Time
	length time.Duration
}

// MemoryStore keeps sliding windows in process memory
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a new in-memory store. Idle keys are swept every
// cleanupInterval; a non-positive interval disables the sweeper.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if cleanupInterval <= 0 {
		close(s.done)
		return s
	}

	go s.sweepLoop(cleanupInterval)
	return s
}

// Allow records a request at now when the window has room
func (s *MemoryStore) Allow(_ context.Context, key string, limit int, length time.Duration, now time.Time) (ports.RateDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.length = length
	w.stamps = prune(w.stamps, now.Add(-length))

	decision := ports.RateDecision{Limit: limit}
	if len(w.stamps) < limit {
		w.stamps = append(w.stamps, now)
		decision.Allowed = true
		decision.Remaining = limit - len(w.stamps)
	}
	if len(w.stamps) > 0 {
		decision.ResetAt = w.stamps[0].Add(length)
	} else {
		decision.ResetAt = now.Add(length)
	}

	return decision, nil
}

// Sweep drops keys whose windows have fully expired at now
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		w.stamps = prune(w.stamps, now.Add(-w.length))
		if len(w.stamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Close stops the sweeper
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// prune drops stamps at or before cutoff; stamps are in ascending order
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
