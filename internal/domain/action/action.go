// Package action defines the pending/executed action entities that flow
// through the approval workflow.
package action

import (
	"fmt"
	"time"
)

// Type classifies what a tool does to the business database.
type Type string

const (
	TypeSearch Type = "SEARCH"
	TypeCreate Type = "CREATE"
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
	TypeDraft  Type = "DRAFT"
)

// Entity is a CRM entity type a tool may touch.
type Entity string

const (
	EntityLead    Entity = "lead"
	EntityContact Entity = "contact"
	EntityAccount Entity = "account"
	EntityCase    Entity = "case"
	EntityDeal    Entity = "deal"
	EntityMessage Entity = "message"
)

// Status is the lifecycle state of a pending action.
// Transitions are append-only: PENDING -> APPROVED | REJECTED | EXPIRED.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

const (
	// ApprovalWindow is how long a pending action stays approvable.
	ApprovalWindow = 30 * time.Minute

	// RollbackWindow is how long after execution a rollback is accepted.
	RollbackWindow = time.Hour
)

// Input is the opaque key/value payload a caller proposes to a tool.
type Input map[string]any

// Pending is a proposed write awaiting a human decision.
// Status is mutated only by the workflow engine.
type Pending struct {
	ID         string    `json:"id"`
	ToolName   string    `json:"tool_name"`
	ActionType Type      `json:"action_type"`
	EntityType Entity    `json:"entity_type"`
	Input      Input     `json:"input"`
	Preview    *Preview  `json:"preview,omitempty"`
	Status     Status    `json:"status"`
	CreatedBy  string    `json:"created_by"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired is the single expiry predicate shared by the lazy read path and
// the bulk sweep, so the two can never diverge.
func (p *Pending) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// DecisionVerdict is a human's choice on a pending action.
type DecisionVerdict string

const (
	VerdictApprove DecisionVerdict = "APPROVE"
	VerdictReject  DecisionVerdict = "REJECT"
)

// Decision records who decided a pending action, and how. ModifiedInput,
// when set, replaces the proposed input for execution (human-edited fields).
type Decision struct {
	ActionID      string          `json:"action_id"`
	Verdict       DecisionVerdict `json:"verdict"`
	DecidedBy     string          `json:"decided_by"`
	DecidedAt     time.Time       `json:"decided_at"`
	Reason        string          `json:"reason,omitempty"`
	ModifiedInput Input           `json:"modified_input,omitempty"`
}

// Executed is the record of a tool actually run after approval. It exists
// iff the source Pending reached APPROVED. RollbackAvailable flips to false
// permanently after a successful rollback or once RollbackWindow elapses.
type Executed struct {
	Pending

	Decision          Decision  `json:"decision"`
	ExecutedAt        time.Time `json:"executed_at"`
	Result            any       `json:"result,omitempty"`
	ExecutionError    string    `json:"execution_error,omitempty"`
	RollbackAvailable bool      `json:"rollback_available"`
	RollbackToken     string    `json:"rollback_token,omitempty"`
}

// RollbackRequest is what a caller submits to undo an executed action.
type RollbackRequest struct {
	ActionID      string `json:"action_id"`
	RollbackToken string `json:"rollback_token"`
	RequestedBy   string `json:"requested_by"`
	Reason        string `json:"reason,omitempty"`
}

// RollbackResult reports the outcome of a rollback attempt.
type RollbackResult struct {
	Success       bool       `json:"success"`
	RolledBackAt  *time.Time `json:"rolled_back_at,omitempty"`
	RestoredState any        `json:"restored_state,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// RollbackRecord is the previous-state snapshot a tool's rollback writes as
// a side effect, independent of the engine's bookkeeping.
type RollbackRecord struct {
	ActionID      string    `json:"action_id"`
	EntityType    Entity    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	PreviousState any       `json:"previous_state,omitempty"`
	RequestedBy   string    `json:"requested_by"`
	RequestedAt   time.Time `json:"requested_at"`
}

// Stats are the counts served to operational dashboards.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
}

// NotPendingError reports a decision attempted on an already-decided or
// expired action, naming the status it actually has.
type NotPendingError struct {
	ActionID string
	Status   Status
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("action %s is not pending (status: %s)", e.ActionID, e.Status)
}
