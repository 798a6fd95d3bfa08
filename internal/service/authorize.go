package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	otelx "github.com/nexocrm/agentgate/internal/adapter/otel"
	"github.com/nexocrm/agentgate/internal/domain/action"
	"github.com/nexocrm/agentgate/internal/domain/audit"
	"github.com/nexocrm/agentgate/internal/domain/authz"
	"github.com/nexocrm/agentgate/internal/port/auditlog"
	"github.com/nexocrm/agentgate/internal/port/sessioncounter"
	"github.com/nexocrm/agentgate/internal/tool"
)

// AuthorizationService resolves roles into permissions and checks proposed
// tool invocations against them. Every check, allowed or denied, emits one
// audit entry.
type AuthorizationService struct {
	table    *authz.Table
	sessions sessioncounter.Counter
	audit    auditlog.Sink
	metrics  *otelx.Metrics
	now      func() time.Time
}

// NewAuthorizationService creates the authorization engine.
func NewAuthorizationService(table *authz.Table, sessions sessioncounter.Counter, sink auditlog.Sink, metrics *otelx.Metrics) *AuthorizationService {
	return &AuthorizationService{
		table:    table,
		sessions: sessions,
		audit:    sink,
		metrics:  metrics,
		now:      time.Now,
	}
}

// BuildContext reconstructs the per-request permission snapshot for a
// (user, session) pair. Precedence: explicit override > role table row >
// most-restrictive fallback.
func (s *AuthorizationService) BuildContext(ctx context.Context, userID string, role authz.Role, sessionID string, override *authz.Permission) (*authz.Context, error) {
	count, err := s.sessions.Count(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session counter: %w", err)
	}
	return &authz.Context{
		UserID:      userID,
		Role:        role,
		SessionID:   sessionID,
		Permission:  s.table.Resolve(role, override),
		ActionCount: count,
	}, nil
}

// Authorize runs the check pipeline for one proposed tool invocation,
// short-circuiting on the first failure. On success, the session counter
// is incremented exactly once and the returned context carries the new
// count; on denial the counter is untouched.
func (s *AuthorizationService) Authorize(ctx context.Context, t tool.Tool, input action.Input, actx *authz.Context) (*authz.Context, error) {
	start := s.now()

	denied := func(err *authz.DeniedError) (*authz.Context, error) {
		s.metrics.IncAuthz(ctx, false, string(actx.Role))
		s.auditAuthz(ctx, t, input, actx, start, err)
		return nil, err
	}

	// 1. Action type.
	if !actx.Permission.AllowsAction(t.Kind()) {
		return denied(authz.Denied(authz.DeniedActionType,
			"not authorized to perform %s actions", t.Kind()))
	}

	// 2. Entity types: at least one declared entity must be allowed.
	if !actx.Permission.AllowsAnyEntity(t.Entities()) {
		return denied(authz.Denied(authz.DeniedEntityType,
			"not authorized to access entity types %v", t.Entities()))
	}

	// 3. Session quota (pre-check; the atomic increment below is the
	// authoritative gate under concurrency).
	if actx.ActionCount >= actx.Permission.MaxActionsPerSession {
		return denied(authz.Denied(authz.DeniedQuotaExceeded, "session action limit reached"))
	}

	// 4. Approval eligibility: the reserved read-only role may never
	// enqueue approval-required actions.
	if t.RequiresApproval() && !actx.Permission.CanRequestApproval {
		return denied(authz.Denied(authz.DeniedApprovalIneligible,
			"role %s may not request approval-required actions", actx.Role))
	}

	// 5. Ownership on update/delete for non-privileged roles.
	if err := s.checkOwnership(ctx, t, input, actx); err != nil {
		return denied(err)
	}

	count, ok, err := s.sessions.IncrementIfBelow(ctx, actx.SessionID, actx.Permission.MaxActionsPerSession)
	if err != nil {
		return nil, fmt.Errorf("increment session counter: %w", err)
	}
	if !ok {
		// A concurrent call took the last slot between the pre-check
		// and the increment.
		return denied(authz.Denied(authz.DeniedQuotaExceeded, "session action limit reached"))
	}

	updated := *actx
	updated.ActionCount = count

	s.metrics.IncAuthz(ctx, true, string(actx.Role))
	s.auditAuthz(ctx, t, input, &updated, start, nil)
	return &updated, nil
}

// checkOwnership verifies the caller may act on the specific entity an
// UPDATE/DELETE input references. Privileged roles bypass it; tools
// without an OwnerLookup pass it.
func (s *AuthorizationService) checkOwnership(ctx context.Context, t tool.Tool, input action.Input, actx *authz.Context) *authz.DeniedError {
	if t.Kind() != action.TypeUpdate && t.Kind() != action.TypeDelete {
		return nil
	}
	if actx.Permission.Privileged {
		return nil
	}
	lookup, ok := t.(tool.OwnerLookup)
	if !ok {
		return nil
	}

	owner, err := lookup.Owner(ctx, input)
	if err != nil {
		return authz.Denied(authz.DeniedOwnership, "ownership lookup failed: %v", err)
	}
	if owner != "" && owner != actx.UserID {
		return authz.Denied(authz.DeniedOwnership,
			"entity is owned by %s, not the caller", owner)
	}
	return nil
}

// CanApprove reports whether a role may decide pending actions.
// Independent of the check pipeline.
func (s *AuthorizationService) CanApprove(role authz.Role) bool {
	return s.table.Resolve(role, nil).CanApprove
}

// CanRollback reports whether a user may roll back an executed action:
// the original approver, or any privileged role.
func (s *AuthorizationService) CanRollback(userID string, role authz.Role, exec *action.Executed) bool {
	if s.table.Resolve(role, nil).Privileged {
		return true
	}
	return exec.Decision.DecidedBy == userID
}

func (s *AuthorizationService) auditAuthz(ctx context.Context, t tool.Tool, input action.Input, actx *authz.Context, start time.Time, denial *authz.DeniedError) {
	entry := &audit.Entry{
		ID:               uuid.NewString(),
		Kind:             audit.KindAuthorization,
		Actor:            actx.UserID,
		SessionID:        actx.SessionID,
		ToolName:         t.Name(),
		ActionType:       t.Kind(),
		Input:            audit.Redact(input),
		Success:          denial == nil,
		Duration:         s.now().Sub(start),
		RequiresApproval: t.RequiresApproval(),
		CreatedAt:        s.now(),
	}
	if len(t.Entities()) > 0 {
		entry.EntityType = t.Entities()[0]
	}
	if denial != nil {
		entry.Error = denial.Error()
	}

	if err := s.audit.Write(ctx, entry); err != nil {
		slog.Warn("audit write failed", "kind", string(entry.Kind), "error", err)
	}
}
