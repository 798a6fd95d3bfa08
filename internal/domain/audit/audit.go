// Package audit defines the structured audit record emitted for every
// authorization decision, approval decision, execution, and rollback.
package audit

import (
	"time"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Kind classifies what lifecycle step an entry records.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindDecision      Kind = "decision"
	KindExecution     Kind = "execution"
	KindRollback      Kind = "rollback"
)

// Entry is one structured audit record. Input is stored redacted.
type Entry struct {
	ID               string        `json:"id"`
	Kind             Kind          `json:"kind"`
	Actor            string        `json:"actor"`
	SessionID        string        `json:"session_id,omitempty"`
	ToolName         string        `json:"tool_name,omitempty"`
	ActionID         string        `json:"action_id,omitempty"`
	ActionType       action.Type   `json:"action_type,omitempty"`
	EntityType       action.Entity `json:"entity_type,omitempty"`
	Input            action.Input  `json:"input,omitempty"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	Duration         time.Duration `json:"duration_ns,omitempty"`
	RequiresApproval bool          `json:"requires_approval"`
	ApprovalStatus   action.Status `json:"approval_status,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// sensitiveKeys are input fields whose values never reach an audit sink.
var sensitiveKeys = map[string]struct{}{
	"password": {},
	"token":    {},
	"secret":   {},
	"api_key":  {},
	"ssn":      {},
}

// Redact returns a copy of the input with sensitive values masked.
// The original map is not modified.
func Redact(in action.Input) action.Input {
	if in == nil {
		return nil
	}
	out := make(action.Input, len(in))
	for k, v := range in {
		if _, ok := sensitiveKeys[k]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
