package auditlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexocrm/agentgate/internal/domain/audit"
	"github.com/nexocrm/agentgate/internal/port/auditlog"
)

// Multi fans one audit entry out to several sinks. Sink failures are
// logged and swallowed: the audit trail is fire-and-forget and must never
// abort the workflow operation that produced the entry.
type Multi struct {
	sinks []auditlog.Sink
	log   *slog.Logger
}

// NewMulti creates a fan-out over the given sinks.
func NewMulti(log *slog.Logger, sinks ...auditlog.Sink) *Multi {
	return &Multi{sinks: sinks, log: log}
}

// Write delivers the entry to every sink.
func (m *Multi) Write(ctx context.Context, e *audit.Entry) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, e); err != nil {
			m.log.Error("audit sink failed",
				"audit_id", e.ID,
				"kind", string(e.Kind),
				"error", err,
			)
		}
	}
	return nil
}

// Strict wraps a sink and propagates its errors, for tests and callers
// that want a logging failure to be fatal.
type Strict struct {
	Sink auditlog.Sink
}

// Write forwards to the wrapped sink and returns its error.
func (s Strict) Write(ctx context.Context, e *audit.Entry) error {
	if err := s.Sink.Write(ctx, e); err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	return nil
}
