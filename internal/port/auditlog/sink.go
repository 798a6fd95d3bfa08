// Package auditlog defines the audit trail boundary. The core emits one
// structured record per authorization decision, approval decision,
// execution, and rollback; where those records go (console, store,
// message bus, warehouse) is an adapter concern.
package auditlog

import (
	"context"

	"github.com/nexocrm/agentgate/internal/domain/audit"
)

// Sink receives audit entries. The engine treats Write as fire-and-forget:
// a sink error must not abort the workflow operation that produced the
// entry (the Multi fan-out in adapter/auditlog guarantees this; the Strict
// wrapper reverses it for tests that want logging failures to be fatal).
type Sink interface {
	Write(ctx context.Context, e *audit.Entry) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e *audit.Entry) error

func (f SinkFunc) Write(ctx context.Context, e *audit.Entry) error {
	return f(ctx, e)
}
