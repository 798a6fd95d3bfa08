package authz

import (
	"testing"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

func TestResolveKnownRole(t *testing.T) {
	table := NewTable(nil)

	p := table.Resolve(RoleSalesRep, nil)
	if p.MaxActionsPerSession != 100 {
		t.Errorf("sales_rep quota: got %d, want 100", p.MaxActionsPerSession)
	}
	if p.AllowsAction(action.TypeDelete) {
		t.Error("sales_rep must not be allowed DELETE actions")
	}
	if !p.AllowsAction(action.TypeDraft) {
		t.Error("sales_rep should be allowed DRAFT actions")
	}
	if p.CanApprove {
		t.Error("sales_rep must not be able to approve")
	}
}

func TestResolveUnknownRoleFallsBack(t *testing.T) {
	table := NewTable(nil)

	p := table.Resolve(Role("intern"), nil)
	want := table.Resolve(FallbackRole, nil)
	if p.MaxActionsPerSession != want.MaxActionsPerSession || p.CanRequestApproval != want.CanRequestApproval {
		t.Errorf("unknown role did not resolve to the fallback row: got %+v", p)
	}
	if len(p.ActionTypes) != 1 || p.ActionTypes[0] != action.TypeSearch {
		t.Errorf("fallback role should be search-only, got %v", p.ActionTypes)
	}
}

func TestResolveOverrideWins(t *testing.T) {
	table := NewTable(nil)

	override := &Permission{
		EntityTypes:          []action.Entity{action.EntityLead},
		ActionTypes:          []action.Type{action.TypeSearch, action.TypeCreate},
		MaxActionsPerSession: 3,
		CanRequestApproval:   true,
	}
	p := table.Resolve(RoleReadOnly, override)
	if p.MaxActionsPerSession != 3 {
		t.Errorf("override quota: got %d, want 3", p.MaxActionsPerSession)
	}
	if !p.AllowsAction(action.TypeCreate) {
		t.Error("override should allow CREATE even for readonly role")
	}
}

func TestTableExtraRowReplacesPreset(t *testing.T) {
	extra := map[Role]Permission{
		RoleSalesRep: {
			EntityTypes:          []action.Entity{action.EntityLead},
			ActionTypes:          []action.Type{action.TypeSearch},
			MaxActionsPerSession: 10,
			CanRequestApproval:   true,
		},
	}
	table := NewTable(extra)

	p := table.Resolve(RoleSalesRep, nil)
	if p.MaxActionsPerSession != 10 {
		t.Errorf("extra row should replace preset: got quota %d, want 10", p.MaxActionsPerSession)
	}
}

func TestAllowsAnyEntity(t *testing.T) {
	p := Permission{EntityTypes: []action.Entity{action.EntityLead, action.EntityCase}}

	if !p.AllowsAnyEntity([]action.Entity{action.EntityDeal, action.EntityCase}) {
		t.Error("expected overlap on case to be allowed")
	}
	if p.AllowsAnyEntity([]action.Entity{action.EntityDeal, action.EntityMessage}) {
		t.Error("expected no overlap to be denied")
	}
}
