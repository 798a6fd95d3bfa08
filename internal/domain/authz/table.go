package authz

import "github.com/nexocrm/agentgate/internal/domain/action"

// Table is the role-permission table. Resolution precedence is
// explicit per-call overrides > table row > FallbackRole.
type Table struct {
	roles map[Role]Permission
}

// NewTable builds a table from the given role rows merged over the
// built-in presets. Rows in extra replace presets with the same role name.
func NewTable(extra map[Role]Permission) *Table {
	roles := Presets()
	for r, p := range extra {
		roles[r] = p
	}
	return &Table{roles: roles}
}

// Resolve returns the permission for a role. Unknown roles resolve to the
// fallback (most restrictive) row. An override, when non-nil, wins outright.
func (t *Table) Resolve(role Role, override *Permission) Permission {
	if override != nil {
		return *override
	}
	if p, ok := t.roles[role]; ok {
		return p
	}
	return t.roles[FallbackRole]
}

// Roles returns the role names in the table.
func (t *Table) Roles() []Role {
	out := make([]Role, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	return out
}

// Presets returns the built-in role rows.
func Presets() map[Role]Permission {
	allEntities := []action.Entity{
		action.EntityLead, action.EntityContact, action.EntityAccount,
		action.EntityCase, action.EntityDeal, action.EntityMessage,
	}
	allActions := []action.Type{
		action.TypeSearch, action.TypeCreate, action.TypeUpdate,
		action.TypeDelete, action.TypeDraft,
	}

	return map[Role]Permission{
		RoleAdmin: {
			EntityTypes:          allEntities,
			ActionTypes:          allActions,
			MaxActionsPerSession: 500,
			CanApprove:           true,
			CanRequestApproval:   true,
			Privileged:           true,
		},
		RoleSupervisor: {
			EntityTypes:          allEntities,
			ActionTypes:          allActions,
			MaxActionsPerSession: 200,
			CanApprove:           true,
			CanRequestApproval:   true,
			Privileged:           true,
		},
		RoleSalesRep: {
			EntityTypes: []action.Entity{
				action.EntityLead, action.EntityContact,
				action.EntityCase, action.EntityDeal, action.EntityMessage,
			},
			ActionTypes: []action.Type{
				action.TypeSearch, action.TypeCreate,
				action.TypeUpdate, action.TypeDraft,
			},
			MaxActionsPerSession: 100,
			CanApprove:           false,
			CanRequestApproval:   true,
			Privileged:           false,
		},
		RoleReadOnly: {
			EntityTypes:          allEntities,
			ActionTypes:          []action.Type{action.TypeSearch},
			MaxActionsPerSession: 100,
			CanApprove:           false,
			CanRequestApproval:   false,
			Privileged:           false,
		},
	}
}
