package action

// ChangeKind classifies a single field change in a preview.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "ADD"
	ChangeModify ChangeKind = "MODIFY"
	ChangeDelete ChangeKind = "DELETE"
)

// Effect classifies how an entity is affected by an action.
type Effect string

const (
	EffectCreate Effect = "CREATE"
	EffectUpdate Effect = "UPDATE"
	EffectDelete Effect = "DELETE"
	EffectRead   Effect = "READ"
)

// Impact is the estimated blast radius of an action.
type Impact string

const (
	ImpactLow    Impact = "LOW"
	ImpactMedium Impact = "MEDIUM"
	ImpactHigh   Impact = "HIGH"
)

// ChangeItem is one field-level diff line in a preview.
type ChangeItem struct {
	Field    string     `json:"field"`
	Previous any        `json:"previous,omitempty"`
	New      any        `json:"new,omitempty"`
	Kind     ChangeKind `json:"kind"`
}

// AffectedEntity names one entity an action would touch.
type AffectedEntity struct {
	Type        Entity `json:"type"`
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Effect      Effect `json:"effect"`
}

// Preview is the human-readable diff computed once at proposal time.
// It describes the intent, not eventual reality, and is immutable after
// creation.
type Preview struct {
	Summary  string           `json:"summary"`
	Changes  []ChangeItem     `json:"changes,omitempty"`
	Entities []AffectedEntity `json:"entities,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Impact   Impact           `json:"impact"`
}
