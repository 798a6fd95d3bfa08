package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	otelx "github.com/nexocrm/agentgate/internal/adapter/otel"
	"github.com/nexocrm/agentgate/internal/domain"
	"github.com/nexocrm/agentgate/internal/domain/action"
	"github.com/nexocrm/agentgate/internal/domain/audit"
	"github.com/nexocrm/agentgate/internal/domain/authz"
	"github.com/nexocrm/agentgate/internal/execpool"
	"github.com/nexocrm/agentgate/internal/port/actionstore"
	"github.com/nexocrm/agentgate/internal/port/auditlog"
	"github.com/nexocrm/agentgate/internal/port/broadcast"
	"github.com/nexocrm/agentgate/internal/port/cache"
	"github.com/nexocrm/agentgate/internal/tool"
)

// Event types broadcast to connected operator clients.
const (
	EventActionPending    = "action.pending"
	EventActionDecided    = "action.decided"
	EventActionRolledBack = "action.rolledback"
	EventActionsExpired   = "actions.expired"
)

const statsCacheTTL = 5 * time.Second

// ApprovalService is the workflow engine: it owns every status transition
// of a pending action, runs approved tools, and enforces the single-use
// rollback protocol. Tools never see authorization or lifecycle state.
type ApprovalService struct {
	store    actionstore.Store
	registry *tool.Registry
	authz    *AuthorizationService
	audit    auditlog.Sink
	events   broadcast.Broadcaster
	pool     *execpool.Pool
	cache    cache.Cache
	metrics  *otelx.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewApprovalService creates the workflow engine. events, pool, cache and
// metrics may be nil; the service degrades to no broadcasting, unbounded
// execution, uncached stats and no metrics.
func NewApprovalService(
	store actionstore.Store,
	registry *tool.Registry,
	authzSvc *AuthorizationService,
	sink auditlog.Sink,
	events broadcast.Broadcaster,
	pool *execpool.Pool,
	statsCache cache.Cache,
	metrics *otelx.Metrics,
	logger *slog.Logger,
) *ApprovalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalService{
		store:    store,
		registry: registry,
		authz:    authzSvc,
		audit:    sink,
		events:   events,
		pool:     pool,
		cache:    statsCache,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Invoke is the single entry point for agent tool calls. The tool is
// resolved, the invocation authorized, and then either executed directly
// (approval-exempt tools) or parked as a pending action for human review.
// Authorization denials come back inside the Result, not as an error;
// errors are reserved for infrastructure failures.
func (s *ApprovalService) Invoke(ctx context.Context, toolName string, input action.Input, actx *authz.Context) (*tool.Result, error) {
	start := s.now()

	t, err := s.registry.Get(toolName)
	if err != nil {
		if errors.Is(err, domain.ErrToolNotFound) {
			return &tool.Result{Error: err.Error(), Elapsed: s.now().Sub(start)}, nil
		}
		return nil, err
	}

	actx, err = s.authz.Authorize(ctx, t, input, actx)
	if err != nil {
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return &tool.Result{Error: denied.Error(), Elapsed: s.now().Sub(start)}, nil
		}
		return nil, err
	}

	if !t.RequiresApproval() {
		data, execErr := s.runTool(ctx, t, input)
		s.auditExecution(ctx, t, nil, actx.UserID, actx.SessionID, input, s.now().Sub(start), execErr)
		if execErr != nil {
			return &tool.Result{Error: execErr.Error(), Elapsed: s.now().Sub(start)}, nil
		}
		return &tool.Result{Success: true, Data: data, Elapsed: s.now().Sub(start)}, nil
	}

	pending, err := s.propose(ctx, t, input, actx)
	if err != nil {
		return nil, err
	}
	return &tool.Result{
		Success:          true,
		RequiresApproval: true,
		ActionID:         pending.ID,
		Elapsed:          s.now().Sub(start),
	}, nil
}

// propose parks an authorized approval-required invocation as a pending
// action, preview attached, and notifies connected operators.
func (s *ApprovalService) propose(ctx context.Context, t tool.Tool, input action.Input, actx *authz.Context) (*action.Pending, error) {
	preview, err := t.GeneratePreview(input)
	if err != nil {
		return nil, fmt.Errorf("generate preview for %s: %w", t.Name(), err)
	}

	now := s.now()
	p := &action.Pending{
		ID:         uuid.NewString(),
		ToolName:   t.Name(),
		ActionType: t.Kind(),
		EntityType: firstEntity(t),
		Input:      input,
		Preview:    preview,
		Status:     action.StatusPending,
		CreatedBy:  actx.UserID,
		SessionID:  actx.SessionID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(action.ApprovalWindow),
	}
	if err := s.store.CreatePending(ctx, p); err != nil {
		return nil, fmt.Errorf("create pending action: %w", err)
	}

	s.metrics.IncProposed(ctx, t.Name())
	s.invalidateStats(ctx, p.CreatedBy)
	s.broadcast(ctx, EventActionPending, p)
	s.logger.Info("action pending approval",
		"action_id", p.ID, "tool", p.ToolName, "created_by", p.CreatedBy)
	return p, nil
}

// Approve decides a pending action positively and immediately executes it.
// modified, when non-nil, replaces the proposed input for execution and is
// recorded on the decision. Exactly one concurrent Approve/Reject wins;
// the rest see a NotPendingError carrying the settled status.
//
// The returned Executed reports execution failure in-band via
// ExecutionError; the error return is for the decision failing to happen
// at all.
func (s *ApprovalService) Approve(ctx context.Context, actionID string, decider *authz.Context, reason string, modified action.Input) (*action.Executed, error) {
	p, err := s.decide(ctx, actionID, decider, action.StatusApproved)
	if err != nil {
		return nil, err
	}

	decision := action.Decision{
		ActionID:      actionID,
		Verdict:       action.VerdictApprove,
		DecidedBy:     decider.UserID,
		DecidedAt:     s.now(),
		Reason:        reason,
		ModifiedInput: modified,
	}
	s.auditDecision(ctx, p, decision)
	s.metrics.IncDecision(ctx, string(action.VerdictApprove))

	exec, err := s.execute(ctx, p, decision)
	if err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, exec.CreatedBy)
	s.broadcast(ctx, EventActionDecided, exec)
	return exec, nil
}

// Reject decides a pending action negatively. The proposed input is kept
// on the record for the audit trail; nothing is executed.
func (s *ApprovalService) Reject(ctx context.Context, actionID string, decider *authz.Context, reason string) (*action.Pending, error) {
	p, err := s.decide(ctx, actionID, decider, action.StatusRejected)
	if err != nil {
		return nil, err
	}

	decision := action.Decision{
		ActionID:  actionID,
		Verdict:   action.VerdictReject,
		DecidedBy: decider.UserID,
		DecidedAt: s.now(),
		Reason:    reason,
	}
	s.auditDecision(ctx, p, decision)
	s.metrics.IncDecision(ctx, string(action.VerdictReject))

	s.invalidateStats(ctx, p.CreatedBy)
	s.broadcast(ctx, EventActionDecided, p)
	s.logger.Info("action rejected",
		"action_id", p.ID, "decided_by", decider.UserID, "reason", reason)
	return p, nil
}

// decide performs the shared half of Approve and Reject: capability check,
// lazy expiry, and the atomic PENDING -> target transition.
func (s *ApprovalService) decide(ctx context.Context, actionID string, decider *authz.Context, target action.Status) (*action.Pending, error) {
	if !decider.Permission.CanApprove {
		return nil, authz.Denied(authz.DeniedApprovalIneligible,
			"role %s may not decide pending actions", decider.Role)
	}

	p, err := s.store.GetPending(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if p.Status == action.StatusPending && p.IsExpired(s.now()) {
		s.expire(ctx, p)
		return nil, fmt.Errorf("%w: action %s", action.ErrExpired, actionID)
	}

	updated, err := s.store.TransitionPending(ctx, actionID, action.StatusPending, target)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race; report the status the winner settled on.
			if cur, gerr := s.store.GetPending(ctx, actionID); gerr == nil {
				return nil, &action.NotPendingError{ActionID: actionID, Status: cur.Status}
			}
			return nil, &action.NotPendingError{ActionID: actionID, Status: p.Status}
		}
		return nil, err
	}
	return updated, nil
}

// execute runs an approved action's tool and persists the execution
// record. A rollback token is minted only when the tool can actually
// reverse the effect and the execution succeeded.
func (s *ApprovalService) execute(ctx context.Context, p *action.Pending, decision action.Decision) (*action.Executed, error) {
	input := p.Input
	if decision.ModifiedInput != nil {
		input = decision.ModifiedInput
	}

	t, err := s.registry.Get(p.ToolName)
	if err != nil {
		return nil, fmt.Errorf("resolve tool for approved action %s: %w", p.ID, err)
	}

	start := s.now()
	data, execErr := s.runTool(ctx, t, input)
	elapsed := s.now().Sub(start)

	exec := &action.Executed{
		Pending:    *p,
		Decision:   decision,
		ExecutedAt: start,
		Result:     data,
	}
	if execErr != nil {
		exec.ExecutionError = execErr.Error()
	} else if _, ok := t.(tool.Rollbacker); ok {
		token, err := newRollbackToken()
		if err != nil {
			return nil, fmt.Errorf("mint rollback token: %w", err)
		}
		exec.RollbackToken = token
		exec.RollbackAvailable = true
	}

	if err := s.store.CreateExecuted(ctx, exec); err != nil {
		return nil, fmt.Errorf("persist execution record: %w", err)
	}

	s.metrics.ObserveExecution(ctx, p.ToolName, elapsed, execErr == nil)
	s.auditExecution(ctx, t, exec, decision.DecidedBy, p.SessionID, input, elapsed, execErr)
	if execErr != nil {
		s.logger.Warn("approved action failed to execute",
			"action_id", p.ID, "tool", p.ToolName, "error", execErr)
	} else {
		s.logger.Info("approved action executed",
			"action_id", p.ID, "tool", p.ToolName, "rollback_available", exec.RollbackAvailable)
	}
	return exec, nil
}

// Rollback reverses an executed action. The token is single-use: the
// availability flag is claimed atomically before the tool's compensation
// runs, and is consumed even when the compensation fails.
func (s *ApprovalService) Rollback(ctx context.Context, req action.RollbackRequest, caller *authz.Context) (*action.RollbackResult, error) {
	exec, err := s.store.GetExecutedByToken(ctx, req.RollbackToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, action.ErrInvalidRollbackToken
		}
		return nil, err
	}
	if req.ActionID != "" && req.ActionID != exec.ID {
		return nil, action.ErrInvalidRollbackToken
	}
	if !exec.RollbackAvailable {
		return nil, action.ErrRollbackUnavailable
	}
	if s.now().After(exec.ExecutedAt.Add(action.RollbackWindow)) {
		// Late attempts also close the window permanently.
		if derr := s.store.DisableRollback(ctx, exec.ID); derr != nil && !errors.Is(derr, domain.ErrConflict) {
			s.logger.Warn("disable rollback after window", "action_id", exec.ID, "error", derr)
		}
		return nil, fmt.Errorf("%w: executed at %s", action.ErrRollbackWindowExpired, exec.ExecutedAt.Format(time.RFC3339))
	}
	if !s.authz.CanRollback(caller.UserID, caller.Role, exec) {
		return nil, authz.Denied(authz.DeniedOwnership,
			"only the approver or a privileged role may roll back action %s", exec.ID)
	}

	t, err := s.registry.Get(exec.ToolName)
	if err != nil {
		return nil, fmt.Errorf("resolve tool for rollback of %s: %w", exec.ID, err)
	}
	rb, ok := t.(tool.Rollbacker)
	if !ok {
		return nil, fmt.Errorf("%w: tool %s cannot roll back", action.ErrRollbackUnavailable, exec.ToolName)
	}

	// Claim before invoking: the loser of a double-submit never reaches
	// the tool.
	if err := s.store.DisableRollback(ctx, exec.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, action.ErrRollbackUnavailable
		}
		return nil, err
	}

	req.RequestedBy = caller.UserID
	var result *action.RollbackResult
	runErr := s.pool.Run(ctx, func() error {
		var rerr error
		result, rerr = rb.Rollback(ctx, exec, req)
		return rerr
	})
	if runErr != nil {
		result = &action.RollbackResult{Success: false, Error: runErr.Error()}
	}
	if result == nil {
		result = &action.RollbackResult{Success: false, Error: "rollback returned no result"}
	}
	if result.Success && result.RolledBackAt == nil {
		now := s.now()
		result.RolledBackAt = &now
	}

	s.metrics.IncRollback(ctx, result.Success)
	s.auditRollback(ctx, exec, req, result)
	s.invalidateStats(ctx, exec.CreatedBy)
	s.broadcast(ctx, EventActionRolledBack, map[string]any{
		"action_id": exec.ID,
		"success":   result.Success,
	})
	s.logger.Info("rollback attempted",
		"action_id", exec.ID, "requested_by", caller.UserID, "success", result.Success)
	return result, nil
}

// GetPending returns one action, flipping it to EXPIRED first if its
// window has lapsed since the last read.
func (s *ApprovalService) GetPending(ctx context.Context, actionID string) (*action.Pending, error) {
	p, err := s.store.GetPending(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if p.Status == action.StatusPending && p.IsExpired(s.now()) {
		return s.expire(ctx, p), nil
	}
	return p, nil
}

// ListPending returns all actions still awaiting a decision, sweeping
// expired ones out first so the list never shows a dead action.
func (s *ApprovalService) ListPending(ctx context.Context) ([]action.Pending, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.ListByStatus(ctx, action.StatusPending)
}

// Sweep flips every lapsed PENDING action to EXPIRED and returns how many
// changed. Safe to run concurrently with decisions: the store's CAS makes
// sweep and approve agree on a single outcome per action.
func (s *ApprovalService) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired actions: %w", err)
	}
	if n > 0 {
		s.metrics.AddExpired(ctx, n)
		s.invalidateStats(ctx, "")
		s.broadcast(ctx, EventActionsExpired, map[string]any{"count": n})
		s.logger.Info("expired pending actions", "count", n)
	}
	return n, nil
}

// DiffPreview projects a pending action's preview into the flat
// field/old/new rows an approval UI renders.
func (s *ApprovalService) DiffPreview(ctx context.Context, actionID string) (*action.Preview, error) {
	p, err := s.GetPending(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if p.Preview == nil {
		return nil, fmt.Errorf("%w: action %s has no preview", domain.ErrNotFound, actionID)
	}
	return p.Preview, nil
}

// Stats returns action counts by status, optionally scoped to one creator.
// Results are cached briefly. Per-action transitions invalidate both the
// aggregate entry and the creator's entry; after a bulk sweep, per-user
// entries may lag by at most one TTL.
func (s *ApprovalService) Stats(ctx context.Context, userID string) (*action.Stats, error) {
	key := statsCacheKey(userID)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var st action.Stats
			if err := json.Unmarshal(raw, &st); err == nil {
				return &st, nil
			}
		}
	}

	st, err := s.store.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(st); err == nil {
			_ = s.cache.Set(ctx, key, raw, statsCacheTTL)
		}
	}
	return st, nil
}

func (s *ApprovalService) runTool(ctx context.Context, t tool.Tool, input action.Input) (any, error) {
	var data any
	err := s.pool.Run(ctx, func() error {
		var rerr error
		data, rerr = t.Execute(ctx, input)
		return rerr
	})
	return data, err
}

// expire flips one lapsed action to EXPIRED. A lost race means someone
// else settled it; the settled record is returned either way.
func (s *ApprovalService) expire(ctx context.Context, p *action.Pending) *action.Pending {
	updated, err := s.store.TransitionPending(ctx, p.ID, action.StatusPending, action.StatusExpired)
	if err != nil {
		if cur, gerr := s.store.GetPending(ctx, p.ID); gerr == nil {
			return cur
		}
		return p
	}
	s.metrics.AddExpired(ctx, 1)
	s.invalidateStats(ctx, p.CreatedBy)
	return updated
}

func (s *ApprovalService) auditDecision(ctx context.Context, p *action.Pending, d action.Decision) {
	s.writeAudit(ctx, &audit.Entry{
		ID:             uuid.NewString(),
		Kind:           audit.KindDecision,
		Actor:          d.DecidedBy,
		SessionID:      p.SessionID,
		ToolName:       p.ToolName,
		ActionID:       p.ID,
		ActionType:     p.ActionType,
		EntityType:     p.EntityType,
		Input:          audit.Redact(p.Input),
		Success:        true,
		Reason:         d.Reason,
		ApprovalStatus: p.Status,
		CreatedAt:      s.now(),
	})
}

func (s *ApprovalService) auditExecution(ctx context.Context, t tool.Tool, exec *action.Executed, actor, sessionID string, input action.Input, elapsed time.Duration, execErr error) {
	entry := &audit.Entry{
		ID:               uuid.NewString(),
		Kind:             audit.KindExecution,
		Actor:            actor,
		SessionID:        sessionID,
		ToolName:         t.Name(),
		ActionType:       t.Kind(),
		EntityType:       firstEntity(t),
		Input:            audit.Redact(input),
		Success:          execErr == nil,
		Duration:         elapsed,
		RequiresApproval: t.RequiresApproval(),
		CreatedAt:        s.now(),
	}
	if exec != nil {
		entry.ActionID = exec.ID
		entry.ApprovalStatus = exec.Status
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}
	s.writeAudit(ctx, entry)
}

func (s *ApprovalService) auditRollback(ctx context.Context, exec *action.Executed, req action.RollbackRequest, res *action.RollbackResult) {
	s.writeAudit(ctx, &audit.Entry{
		ID:         uuid.NewString(),
		Kind:       audit.KindRollback,
		Actor:      req.RequestedBy,
		SessionID:  exec.SessionID,
		ToolName:   exec.ToolName,
		ActionID:   exec.ID,
		ActionType: exec.ActionType,
		EntityType: exec.EntityType,
		Success:    res.Success,
		Error:      res.Error,
		Reason:     req.Reason,
		CreatedAt:  s.now(),
	})
}

func (s *ApprovalService) writeAudit(ctx context.Context, e *audit.Entry) {
	if err := s.audit.Write(ctx, e); err != nil {
		s.logger.Warn("audit write failed", "kind", string(e.Kind), "error", err)
	}
}

func (s *ApprovalService) broadcast(ctx context.Context, eventType string, payload any) {
	if s.events == nil {
		return
	}
	s.events.BroadcastEvent(ctx, eventType, payload)
}

// invalidateStats drops the cached aggregate counts plus the creator's
// per-user entry. An empty userID (bulk transitions spanning unknown
// creators) drops only the aggregate.
func (s *ApprovalService) invalidateStats(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, statsCacheKey(""))
	if userID != "" {
		_ = s.cache.Delete(ctx, statsCacheKey(userID))
	}
}

func statsCacheKey(userID string) string {
	if userID == "" {
		return "stats:all"
	}
	return "stats:user:" + userID
}

func firstEntity(t tool.Tool) action.Entity {
	ents := t.Entities()
	if len(ents) == 0 {
		return ""
	}
	return ents[0]
}

func newRollbackToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
