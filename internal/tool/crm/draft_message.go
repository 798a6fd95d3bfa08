package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// DraftMessage drafts an outbound customer message. Approval-required;
// rollback deletes the draft, but fails once the message has been sent.
type DraftMessage struct {
	store *Store
}

// NewDraftMessage creates the tool.
func NewDraftMessage(store *Store) *DraftMessage {
	return &DraftMessage{store: store}
}

func (t *DraftMessage) Name() string              { return "draft_message" }
func (t *DraftMessage) Kind() action.Type         { return action.TypeDraft }
func (t *DraftMessage) Entities() []action.Entity { return []action.Entity{action.EntityMessage} }
func (t *DraftMessage) RequiresApproval() bool    { return true }

func (t *DraftMessage) Execute(_ context.Context, input action.Input) (any, error) {
	to, _ := input["to"].(string)
	if to == "" {
		return nil, fmt.Errorf("draft message: recipient is required")
	}
	subject, _ := input["subject"].(string)
	body, _ := input["body"].(string)

	return t.store.CreateMessage(Message{To: to, Subject: subject, Body: body}), nil
}

func (t *DraftMessage) GeneratePreview(input action.Input) (*action.Preview, error) {
	to, _ := input["to"].(string)
	subject, _ := input["subject"].(string)

	changes := []action.ChangeItem{
		{Field: "to", New: to, Kind: action.ChangeAdd},
		{Field: "subject", New: subject, Kind: action.ChangeAdd},
	}
	if body, ok := input["body"].(string); ok && body != "" {
		changes = append(changes, action.ChangeItem{Field: "body", New: body, Kind: action.ChangeAdd})
	}

	return &action.Preview{
		Summary: fmt.Sprintf("Draft message to %s: %q", to, subject),
		Changes: changes,
		Entities: []action.AffectedEntity{
			{Type: action.EntityMessage, DisplayName: subject, Effect: action.EffectCreate},
		},
		Warnings: []string{"The draft may be sent by a follow-up workflow after creation."},
		Impact:   action.ImpactMedium,
	}, nil
}

// Rollback deletes the draft. A message that already went out cannot be
// recalled; the attempt fails and consumes the token.
func (t *DraftMessage) Rollback(_ context.Context, exec *action.Executed, req action.RollbackRequest) (*action.RollbackResult, error) {
	created, ok := decodeResult[Message](exec.Result)
	if !ok || created.ID == "" {
		return &action.RollbackResult{Success: false, Error: "execution result carries no message"}, nil
	}

	current, err := t.store.GetMessage(created.ID)
	if err != nil {
		return &action.RollbackResult{Success: false, Error: err.Error()}, nil
	}
	if current.Status == MessageSent {
		return &action.RollbackResult{Success: false, Error: "message already sent"}, nil
	}

	if err := t.store.DeleteMessage(created.ID); err != nil {
		return &action.RollbackResult{Success: false, Error: err.Error()}, nil
	}
	t.store.RecordRollback(action.RollbackRecord{
		ActionID:      exec.ID,
		EntityType:    action.EntityMessage,
		EntityID:      created.ID,
		PreviousState: current,
		RequestedBy:   req.RequestedBy,
		RequestedAt:   time.Now(),
	})
	return &action.RollbackResult{Success: true}, nil
}
