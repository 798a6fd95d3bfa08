// Package crm provides the built-in CRM tool set: lead search, case
// creation, deal updates and message drafting, all operating on a
// Store so the approval workflow can be exercised end to end without an
// external CRM.
package crm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/agentgate/internal/domain"
	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Message lifecycle states. A SENT message can no longer be recalled,
// which is what makes draft rollback conditional.
const (
	MessageDraft = "DRAFT"
	MessageSent  = "SENT"
)

// Lead is a sales lead record.
type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Company string `json:"company"`
	Status  string `json:"status"`
	OwnerID string `json:"owner_id"`
}

// Case is a support case record.
type Case struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	ContactID   string    `json:"contact_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Deal is a sales opportunity record.
type Deal struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Stage   string  `json:"stage"`
	Amount  float64 `json:"amount"`
	OwnerID string  `json:"owner_id"`
}

// Message is an outbound customer message.
type Message struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an in-memory CRM the built-in tools operate on. It stands in
// for the real CRM behind the tool layer; the workflow engine never talks
// to it directly.
type Store struct {
	mu       sync.RWMutex
	leads    map[string]Lead
	cases    map[string]Case
	deals    map[string]Deal
	messages map[string]Message
	records  []action.RollbackRecord
}

// NewStore creates an empty CRM store.
func NewStore() *Store {
	return &Store{
		leads:    make(map[string]Lead),
		cases:    make(map[string]Case),
		deals:    make(map[string]Deal),
		messages: make(map[string]Message),
	}
}

// decodeResult recovers a tool's typed execution result. Results read
// back from a durable action store arrive as generic JSON values, so
// anything that is not already the concrete type is re-decoded through
// its JSON form.
func decodeResult[T any](result any) (T, bool) {
	var out T
	if v, ok := result.(T); ok {
		return v, true
	}
	if result == nil {
		return out, false
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// Seed loads fixture records, replacing existing ones with the same ID.
func (s *Store) Seed(leads []Lead, deals []Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	for _, d := range deals {
		s.deals[d.ID] = d
	}
}

// SearchLeads returns leads whose name or company contains the query,
// case-insensitively. An empty query matches everything.
func (s *Store) SearchLeads(query string) []Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Lead
	for _, l := range s.leads {
		if query == "" || containsFold(l.Name, query) || containsFold(l.Company, query) {
			out = append(out, l)
		}
	}
	return out
}

// CreateCase inserts a new case and returns it with its generated ID.
func (s *Store) CreateCase(c Case) Case {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = "open"
	}
	s.cases[c.ID] = c
	return c
}

// GetCase returns a case by ID.
func (s *Store) GetCase(id string) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return Case{}, fmt.Errorf("%w: case %s", domain.ErrNotFound, id)
	}
	return c, nil
}

// DeleteCase removes a case.
func (s *Store) DeleteCase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[id]; !ok {
		return fmt.Errorf("%w: case %s", domain.ErrNotFound, id)
	}
	delete(s.cases, id)
	return nil
}

// GetDeal returns a deal by ID.
func (s *Store) GetDeal(id string) (Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deals[id]
	if !ok {
		return Deal{}, fmt.Errorf("%w: deal %s", domain.ErrNotFound, id)
	}
	return d, nil
}

// PutDeal stores a deal, replacing any existing record with the same ID.
func (s *Store) PutDeal(d Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[d.ID] = d
}

// CreateMessage inserts a new draft message and returns it.
func (s *Store) CreateMessage(m Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = time.Now()
	if m.Status == "" {
		m.Status = MessageDraft
	}
	s.messages[m.ID] = m
	return m
}

// GetMessage returns a message by ID.
func (s *Store) GetMessage(id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	return m, nil
}

// MarkSent flips a message to SENT.
func (s *Store) MarkSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	m.Status = MessageSent
	s.messages[id] = m
	return nil
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	delete(s.messages, id)
	return nil
}

// RecordRollback appends a previous-state snapshot written by a tool's
// rollback.
func (s *Store) RecordRollback(r action.RollbackRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// RollbackRecords returns a copy of all recorded rollback snapshots.
func (s *Store) RollbackRecords() []action.RollbackRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]action.RollbackRecord, len(s.records))
	copy(out, s.records)
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
