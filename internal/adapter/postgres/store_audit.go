package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexocrm/agentgate/internal/domain/audit"
)

// AuditSink implements auditlog.Sink using PostgreSQL. Rows are append
// only; nothing in the service ever updates or deletes them.
type AuditSink struct {
	store *Store
}

// NewAuditSink creates an audit sink backed by the store's pool.
func NewAuditSink(store *Store) *AuditSink {
	return &AuditSink{store: store}
}

func (s *AuditSink) Write(ctx context.Context, e *audit.Entry) error {
	var inputJSON []byte
	if e.Input != nil {
		var err error
		inputJSON, err = json.Marshal(e.Input)
		if err != nil {
			return fmt.Errorf("marshal audit input: %w", err)
		}
	}

	_, err := s.store.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, kind, actor, session_id, tool_name, action_id, action_type, entity_type, input, success, error, reason, duration_ns, requires_approval, approval_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.Kind, e.Actor, e.SessionID, e.ToolName, e.ActionID, e.ActionType, e.EntityType,
		inputJSON, e.Success, e.Error, e.Reason, e.Duration.Nanoseconds(),
		e.RequiresApproval, e.ApprovalStatus, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("write audit entry %s: %w", e.ID, err)
	}
	return nil
}
