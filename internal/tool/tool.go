// Package tool defines the capability contract that lets arbitrary CRM
// operations plug into the authorization and approval lifecycle, and the
// registry that resolves tool names to implementations.
package tool

import (
	"context"
	"time"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Tool is a named, self-describing operation. Execute performs the real
// effect; for approval-required tools the engine calls it only after a
// human approves, so a tool cannot bypass review by being invoked.
// GeneratePreview must be pure: no state mutation, no authorization calls.
type Tool interface {
	Name() string
	Kind() action.Type
	Entities() []action.Entity
	RequiresApproval() bool

	Execute(ctx context.Context, input action.Input) (any, error)
	GeneratePreview(input action.Input) (*action.Preview, error)
}

// Rollbacker is the optional capability of reversing an executed action.
// The engine enforces at-most-once per action; implementations record a
// RollbackRecord with the restored state as a side effect.
type Rollbacker interface {
	Rollback(ctx context.Context, exec *action.Executed, req action.RollbackRequest) (*action.RollbackResult, error)
}

// OwnerLookup is the optional capability of naming the owner of the entity
// an input targets. Tools without it skip the ownership check.
type OwnerLookup interface {
	Owner(ctx context.Context, input action.Input) (string, error)
}

// Result is what an invocation returns to the caller: either the data of
// an approval-exempt operation, or the identifier of a pending action
// awaiting human review.
type Result struct {
	Success          bool          `json:"success"`
	Data             any           `json:"data,omitempty"`
	Error            string        `json:"error,omitempty"`
	RequiresApproval bool          `json:"requires_approval"`
	ActionID         string        `json:"action_id,omitempty"`
	Elapsed          time.Duration `json:"elapsed_ns"`
}
