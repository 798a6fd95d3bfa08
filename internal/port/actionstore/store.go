// Package actionstore defines the port for persisting pending and executed
// actions. Implementations must provide the compare-and-swap semantics the
// workflow engine relies on for exactly-once transitions.
package actionstore

import (
	"context"
	"time"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Store is the port interface for action persistence.
//
// TransitionPending and DisableRollback are atomic check-and-set
// operations: under concurrent callers exactly one succeeds, the rest get
// domain.ErrConflict. Pending actions are never deleted; expired ones stay
// readable with status EXPIRED.
type Store interface {
	// CreatePending persists a new pending action.
	CreatePending(ctx context.Context, p *action.Pending) error

	// GetPending returns a pending action by ID, whatever its status.
	// Returns domain.ErrNotFound if absent.
	GetPending(ctx context.Context, id string) (*action.Pending, error)

	// ListByStatus returns actions with the given status, newest first.
	ListByStatus(ctx context.Context, status action.Status) ([]action.Pending, error)

	// TransitionPending atomically moves an action from status `from` to
	// `to` and returns the updated record. Returns domain.ErrNotFound if
	// the action does not exist and domain.ErrConflict if its status is no
	// longer `from`.
	TransitionPending(ctx context.Context, id string, from, to action.Status) (*action.Pending, error)

	// SweepExpired flips every PENDING action whose expires_at is in the
	// past to EXPIRED and returns the number changed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// CreateExecuted persists the execution record minted by an approval.
	CreateExecuted(ctx context.Context, e *action.Executed) error

	// GetExecuted returns an execution record by action ID.
	GetExecuted(ctx context.Context, actionID string) (*action.Executed, error)

	// GetExecutedByToken resolves an execution record by rollback token,
	// so callers cannot probe action IDs without holding the token.
	GetExecutedByToken(ctx context.Context, token string) (*action.Executed, error)

	// DisableRollback atomically flips rollback availability from true to
	// false. Returns domain.ErrConflict if it was already false, so
	// concurrent rollback attempts resolve to one winner.
	DisableRollback(ctx context.Context, actionID string) error

	// Stats returns action counts, optionally scoped to a creator.
	// An empty userID means all users.
	Stats(ctx context.Context, userID string) (*action.Stats, error)
}
