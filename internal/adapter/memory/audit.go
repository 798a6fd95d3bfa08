package memory

import (
	"context"
	"sync"

	"github.com/nexocrm/agentgate/internal/domain/audit"
)

// AuditSink collects audit entries in memory. Used as the store-backed
// sink for single-process deployments and as a recorder in tests.
type AuditSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

// NewAuditSink creates an empty audit sink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// Write appends an entry.
func (s *AuditSink) Write(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

// Entries returns a copy of everything written so far.
func (s *AuditSink) Entries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByKind returns the recorded entries of one kind.
func (s *AuditSink) ByKind(kind audit.Kind) []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
