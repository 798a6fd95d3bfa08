package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// UpdateDeal changes a deal's stage or amount. Approval-required; the
// execution result keeps the previous state so rollback can restore it.
// Ownership is enforced: a non-privileged caller may only update deals
// assigned to them.
type UpdateDeal struct {
	store *Store
}

// dealUpdate is what an UpdateDeal execution returns: the new state plus
// the snapshot rollback restores.
type dealUpdate struct {
	Deal     Deal `json:"deal"`
	Previous Deal `json:"previous"`
}

// NewUpdateDeal creates the tool.
func NewUpdateDeal(store *Store) *UpdateDeal {
	return &UpdateDeal{store: store}
}

func (t *UpdateDeal) Name() string              { return "update_deal" }
func (t *UpdateDeal) Kind() action.Type         { return action.TypeUpdate }
func (t *UpdateDeal) Entities() []action.Entity { return []action.Entity{action.EntityDeal} }
func (t *UpdateDeal) RequiresApproval() bool    { return true }

// Owner reports who the targeted deal is assigned to.
func (t *UpdateDeal) Owner(_ context.Context, input action.Input) (string, error) {
	id, _ := input["deal_id"].(string)
	if id == "" {
		return "", fmt.Errorf("update deal: deal_id is required")
	}
	d, err := t.store.GetDeal(id)
	if err != nil {
		return "", err
	}
	return d.OwnerID, nil
}

func (t *UpdateDeal) Execute(_ context.Context, input action.Input) (any, error) {
	id, _ := input["deal_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("update deal: deal_id is required")
	}
	prev, err := t.store.GetDeal(id)
	if err != nil {
		return nil, err
	}

	next := prev
	if stage, ok := input["stage"].(string); ok && stage != "" {
		next.Stage = stage
	}
	if amount, ok := numeric(input["amount"]); ok {
		next.Amount = amount
	}
	t.store.PutDeal(next)
	return dealUpdate{Deal: next, Previous: prev}, nil
}

func (t *UpdateDeal) GeneratePreview(input action.Input) (*action.Preview, error) {
	id, _ := input["deal_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("update deal: deal_id is required")
	}
	prev, err := t.store.GetDeal(id)
	if err != nil {
		return nil, err
	}

	var changes []action.ChangeItem
	impact := action.ImpactLow
	if stage, ok := input["stage"].(string); ok && stage != "" && stage != prev.Stage {
		changes = append(changes, action.ChangeItem{
			Field: "stage", Previous: prev.Stage, New: stage, Kind: action.ChangeModify,
		})
		impact = action.ImpactMedium
	}
	if amount, ok := numeric(input["amount"]); ok && amount != prev.Amount {
		changes = append(changes, action.ChangeItem{
			Field: "amount", Previous: prev.Amount, New: amount, Kind: action.ChangeModify,
		})
		if amount > prev.Amount*2 || amount < prev.Amount/2 {
			impact = action.ImpactHigh
		}
	}

	return &action.Preview{
		Summary: fmt.Sprintf("Update deal %q (%d field(s))", prev.Name, len(changes)),
		Changes: changes,
		Entities: []action.AffectedEntity{
			{Type: action.EntityDeal, ID: prev.ID, DisplayName: prev.Name, Effect: action.EffectUpdate},
		},
		Impact: impact,
	}, nil
}

// Rollback restores the deal to its pre-execution snapshot.
func (t *UpdateDeal) Rollback(_ context.Context, exec *action.Executed, req action.RollbackRequest) (*action.RollbackResult, error) {
	upd, ok := decodeResult[dealUpdate](exec.Result)
	if !ok || upd.Previous.ID == "" {
		return &action.RollbackResult{Success: false, Error: "execution result carries no deal snapshot"}, nil
	}

	t.store.PutDeal(upd.Previous)
	t.store.RecordRollback(action.RollbackRecord{
		ActionID:      exec.ID,
		EntityType:    action.EntityDeal,
		EntityID:      upd.Previous.ID,
		PreviousState: upd.Deal,
		RequestedBy:   req.RequestedBy,
		RequestedAt:   time.Now(),
	})
	return &action.RollbackResult{Success: true, RestoredState: upd.Previous}, nil
}

// numeric coerces the number encodings a JSON payload or a direct caller
// may use.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
