package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// CreateCase opens a support case. Approval-required; rollback deletes
// the created case.
type CreateCase struct {
	store *Store
}

// NewCreateCase creates the tool.
func NewCreateCase(store *Store) *CreateCase {
	return &CreateCase{store: store}
}

func (t *CreateCase) Name() string              { return "create_case" }
func (t *CreateCase) Kind() action.Type         { return action.TypeCreate }
func (t *CreateCase) Entities() []action.Entity { return []action.Entity{action.EntityCase} }
func (t *CreateCase) RequiresApproval() bool    { return true }

func (t *CreateCase) Execute(_ context.Context, input action.Input) (any, error) {
	subject, _ := input["subject"].(string)
	if subject == "" {
		return nil, fmt.Errorf("create case: subject is required")
	}
	description, _ := input["description"].(string)
	priority, _ := input["priority"].(string)
	if priority == "" {
		priority = "normal"
	}
	contactID, _ := input["contact_id"].(string)

	created := t.store.CreateCase(Case{
		Subject:     subject,
		Description: description,
		Priority:    priority,
		ContactID:   contactID,
	})
	return created, nil
}

func (t *CreateCase) GeneratePreview(input action.Input) (*action.Preview, error) {
	subject, _ := input["subject"].(string)
	priority, _ := input["priority"].(string)
	if priority == "" {
		priority = "normal"
	}

	changes := []action.ChangeItem{
		{Field: "subject", New: subject, Kind: action.ChangeAdd},
		{Field: "priority", New: priority, Kind: action.ChangeAdd},
	}
	if desc, ok := input["description"].(string); ok && desc != "" {
		changes = append(changes, action.ChangeItem{Field: "description", New: desc, Kind: action.ChangeAdd})
	}

	impact := action.ImpactLow
	if priority == "high" || priority == "urgent" {
		impact = action.ImpactMedium
	}
	return &action.Preview{
		Summary: fmt.Sprintf("Create %s-priority case %q", priority, subject),
		Changes: changes,
		Entities: []action.AffectedEntity{
			{Type: action.EntityCase, DisplayName: subject, Effect: action.EffectCreate},
		},
		Impact: impact,
	}, nil
}

// Rollback deletes the case created by the execution.
func (t *CreateCase) Rollback(_ context.Context, exec *action.Executed, req action.RollbackRequest) (*action.RollbackResult, error) {
	created, ok := decodeResult[Case](exec.Result)
	if !ok || created.ID == "" {
		return &action.RollbackResult{Success: false, Error: "execution result carries no case"}, nil
	}

	if err := t.store.DeleteCase(created.ID); err != nil {
		return &action.RollbackResult{Success: false, Error: err.Error()}, nil
	}
	t.store.RecordRollback(action.RollbackRecord{
		ActionID:      exec.ID,
		EntityType:    action.EntityCase,
		EntityID:      created.ID,
		PreviousState: created,
		RequestedBy:   req.RequestedBy,
		RequestedAt:   time.Now(),
	})
	return &action.RollbackResult{Success: true}, nil
}
