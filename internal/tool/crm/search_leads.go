package crm

import (
	"context"
	"fmt"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// SearchLeads is a read-only lead lookup. It is approval-exempt: searches
// execute immediately once authorized.
type SearchLeads struct {
	store *Store
}

// NewSearchLeads creates the tool.
func NewSearchLeads(store *Store) *SearchLeads {
	return &SearchLeads{store: store}
}

func (t *SearchLeads) Name() string              { return "search_leads" }
func (t *SearchLeads) Kind() action.Type         { return action.TypeSearch }
func (t *SearchLeads) Entities() []action.Entity { return []action.Entity{action.EntityLead} }
func (t *SearchLeads) RequiresApproval() bool    { return false }

func (t *SearchLeads) Execute(_ context.Context, input action.Input) (any, error) {
	query, _ := input["query"].(string)
	leads := t.store.SearchLeads(query)
	return map[string]any{
		"leads": leads,
		"count": len(leads),
	}, nil
}

func (t *SearchLeads) GeneratePreview(input action.Input) (*action.Preview, error) {
	query, _ := input["query"].(string)
	return &action.Preview{
		Summary: fmt.Sprintf("Search leads matching %q", query),
		Entities: []action.AffectedEntity{
			{Type: action.EntityLead, Effect: action.EffectRead},
		},
		Impact: action.ImpactLow,
	}, nil
}
