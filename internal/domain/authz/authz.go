// Package authz defines the permission model for agent tool invocations:
// roles, the role-permission table, and the per-request authorization
// context the engine checks proposals against.
package authz

import (
	"fmt"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Role names a row in the role-permission table.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleSalesRep   Role = "sales_rep"
	RoleReadOnly   Role = "readonly"
)

// FallbackRole is applied when a role name is not in the table.
// It is the most restrictive role so unknown roles fail closed.
const FallbackRole = RoleReadOnly

// Permission is one resolved row of the role table: what a role may touch,
// what it may do, and how many authorized calls one session gets.
type Permission struct {
	EntityTypes          []action.Entity `json:"entity_types" yaml:"entity_types"`
	ActionTypes          []action.Type   `json:"action_types" yaml:"action_types"`
	MaxActionsPerSession int             `json:"max_actions_per_session" yaml:"max_actions_per_session"`

	// CanApprove marks supervisory roles allowed to decide pending actions.
	CanApprove bool `json:"can_approve" yaml:"can_approve"`

	// CanRequestApproval is false only for the reserved read-only role,
	// which may never enqueue approval-required actions.
	CanRequestApproval bool `json:"can_request_approval" yaml:"can_request_approval"`

	// Privileged roles bypass the ownership check on UPDATE/DELETE.
	Privileged bool `json:"privileged" yaml:"privileged"`
}

// AllowsAction reports whether the permission covers the given action type.
func (p *Permission) AllowsAction(t action.Type) bool {
	for _, a := range p.ActionTypes {
		if a == t {
			return true
		}
	}
	return false
}

// AllowsAnyEntity reports whether at least one of the given entity types is
// covered by the permission.
func (p *Permission) AllowsAnyEntity(entities []action.Entity) bool {
	for _, want := range entities {
		for _, have := range p.EntityTypes {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Context is the per-request permission snapshot. It is a value object
// rebuilt on every call from the role table plus optional per-user
// overrides; ActionCount is read from the session counter store.
type Context struct {
	UserID      string     `json:"user_id"`
	Role        Role       `json:"role"`
	SessionID   string     `json:"session_id"`
	Permission  Permission `json:"permission"`
	ActionCount int        `json:"action_count"`
}

// DeniedReason is the sub-reason of an authorization denial.
type DeniedReason string

const (
	DeniedActionType         DeniedReason = "action_type"
	DeniedEntityType         DeniedReason = "entity_type"
	DeniedQuotaExceeded      DeniedReason = "quota_exceeded"
	DeniedApprovalIneligible DeniedReason = "approval_ineligible"
	DeniedOwnership          DeniedReason = "ownership"
)

// DeniedError is a structured authorization denial. It is always
// recoverable by the caller adjusting role or request, never retried
// automatically.
type DeniedError struct {
	Reason  DeniedReason
	Message string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied (%s): %s", e.Reason, e.Message)
}

// Denied builds a DeniedError with a formatted message.
func Denied(reason DeniedReason, format string, args ...any) *DeniedError {
	return &DeniedError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
