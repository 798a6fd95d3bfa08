package memory

import (
	"context"
	"sync"
)

// Sessions is the in-memory session counter. One mutex guards the map so
// IncrementIfBelow is an atomic increment-and-compare: two callers racing
// for the last quota slot resolve to exactly one winner.
type Sessions struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSessions creates an empty session counter.
func NewSessions() *Sessions {
	return &Sessions{counts: make(map[string]int)}
}

// Count returns the current count for a session.
func (s *Sessions) Count(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[sessionID], nil
}

// IncrementIfBelow increments the count when below limit.
func (s *Sessions) IncrementIfBelow(_ context.Context, sessionID string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.counts[sessionID]
	if cur >= limit {
		return cur, false, nil
	}
	cur++
	s.counts[sessionID] = cur
	return cur, true, nil
}

// Reset clears a session's count.
func (s *Sessions) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, sessionID)
	return nil
}
