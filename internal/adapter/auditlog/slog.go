// Package auditlog provides audit sink implementations: a structured-log
// sink and combinators (fan-out, strict) over the auditlog port.
package auditlog

import (
	"context"
	"log/slog"

	"github.com/nexocrm/agentgate/internal/domain/audit"
)

// SlogSink writes audit entries as structured log records.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink writing to the given logger.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

// Write logs the entry at INFO (WARN when the recorded step failed).
func (s *SlogSink) Write(ctx context.Context, e *audit.Entry) error {
	attrs := []any{
		"audit_id", e.ID,
		"kind", string(e.Kind),
		"actor", e.Actor,
		"session_id", e.SessionID,
		"tool", e.ToolName,
		"action_id", e.ActionID,
		"action_type", string(e.ActionType),
		"entity_type", string(e.EntityType),
		"success", e.Success,
		"requires_approval", e.RequiresApproval,
		"approval_status", string(e.ApprovalStatus),
		"duration_ms", e.Duration.Milliseconds(),
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}

	if e.Success {
		s.log.InfoContext(ctx, "audit", attrs...)
	} else {
		s.log.WarnContext(ctx, "audit", attrs...)
	}
	return nil
}
