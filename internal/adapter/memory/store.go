// Package memory provides in-memory reference implementations of the
// action store, session counter, and audit sink ports. They are the
// single-process deployment and the fixture for service tests; the
// postgres adapter is the scaled equivalent.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexocrm/agentgate/internal/domain"
	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Store keeps pending and executed actions in maps guarded by one mutex,
// so every transition is an atomic check-and-set.
type Store struct {
	mu       sync.Mutex
	pending  map[string]*action.Pending
	executed map[string]*action.Executed // keyed by action ID
	byToken  map[string]string           // rollback token -> action ID
}

// NewStore creates an empty in-memory action store.
func NewStore() *Store {
	return &Store{
		pending:  make(map[string]*action.Pending),
		executed: make(map[string]*action.Executed),
		byToken:  make(map[string]string),
	}
}

// CreatePending persists a new pending action.
func (s *Store) CreatePending(_ context.Context, p *action.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[p.ID]; exists {
		return fmt.Errorf("pending action %s: %w", p.ID, domain.ErrConflict)
	}
	cp := *p
	s.pending[p.ID] = &cp
	return nil
}

// GetPending returns a copy of the action, whatever its status.
func (s *Store) GetPending(_ context.Context, id string) (*action.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return nil, fmt.Errorf("pending action %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// ListByStatus returns actions with the given status, newest first.
func (s *Store) ListByStatus(_ context.Context, status action.Status) ([]action.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []action.Pending
	for _, p := range s.pending {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// TransitionPending atomically moves an action between statuses.
func (s *Store) TransitionPending(_ context.Context, id string, from, to action.Status) (*action.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return nil, fmt.Errorf("pending action %s: %w", id, domain.ErrNotFound)
	}
	if p.Status != from {
		return nil, fmt.Errorf("pending action %s is %s, not %s: %w", id, p.Status, from, domain.ErrConflict)
	}
	p.Status = to
	cp := *p
	return &cp, nil
}

// SweepExpired flips every expired PENDING action to EXPIRED.
func (s *Store) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.pending {
		if p.Status == action.StatusPending && p.IsExpired(now) {
			p.Status = action.StatusExpired
			n++
		}
	}
	return n, nil
}

// CreateExecuted persists an execution record and indexes its token.
func (s *Store) CreateExecuted(_ context.Context, e *action.Executed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executed[e.ID]; exists {
		return fmt.Errorf("executed action %s: %w", e.ID, domain.ErrConflict)
	}
	cp := *e
	s.executed[e.ID] = &cp
	if e.RollbackToken != "" {
		s.byToken[e.RollbackToken] = e.ID
	}
	return nil
}

// GetExecuted returns an execution record by action ID.
func (s *Store) GetExecuted(_ context.Context, actionID string) (*action.Executed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getExecutedLocked(actionID)
}

// GetExecutedByToken resolves an execution record by rollback token.
func (s *Store) GetExecutedByToken(_ context.Context, token string) (*action.Executed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("rollback token: %w", domain.ErrNotFound)
	}
	return s.getExecutedLocked(id)
}

func (s *Store) getExecutedLocked(actionID string) (*action.Executed, error) {
	e, ok := s.executed[actionID]
	if !ok {
		return nil, fmt.Errorf("executed action %s: %w", actionID, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

// DisableRollback flips rollback availability to false exactly once.
func (s *Store) DisableRollback(_ context.Context, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executed[actionID]
	if !ok {
		return fmt.Errorf("executed action %s: %w", actionID, domain.ErrNotFound)
	}
	if !e.RollbackAvailable {
		return fmt.Errorf("rollback already disabled for %s: %w", actionID, domain.ErrConflict)
	}
	e.RollbackAvailable = false
	return nil
}

// Stats counts actions per status, optionally scoped to one creator.
func (s *Store) Stats(_ context.Context, userID string) (*action.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st action.Stats
	for _, p := range s.pending {
		if userID != "" && p.CreatedBy != userID {
			continue
		}
		switch p.Status {
		case action.StatusPending:
			st.Pending++
		case action.StatusApproved:
			st.Approved++
		case action.StatusRejected:
			st.Rejected++
		case action.StatusExpired:
			st.Expired++
		}
	}
	return &st, nil
}
