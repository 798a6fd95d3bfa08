package http

import (
	"net/http"

	"github.com/nexocrm/agentgate/internal/adapter/ws"
	"github.com/nexocrm/agentgate/internal/domain/action"
	"github.com/nexocrm/agentgate/internal/middleware"
	"github.com/nexocrm/agentgate/internal/service"
)

const defaultBodyLimit = 1 << 20 // 1 MiB

// Handlers bundles the services the HTTP surface exposes.
type Handlers struct {
	approvals *service.ApprovalService
	authz     *service.AuthorizationService
	hub       *ws.Hub
}

// NewHandlers creates the handler set for the API.
func NewHandlers(approvals *service.ApprovalService, authzSvc *service.AuthorizationService, hub *ws.Hub) *Handlers {
	return &Handlers{
		approvals: approvals,
		authz:     authzSvc,
		hub:       hub,
	}
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

type invokeRequest struct {
	Tool  string       `json:"tool"`
	Input action.Input `json:"input"`
}

// InvokeTool runs a tool through the authorization gate. Approval-exempt
// tools execute immediately; everything else parks a pending action and
// returns 202 with its ID. Denials come back in the result body, not as
// HTTP errors, so agent callers always get a structured outcome.
func (h *Handlers) InvokeTool(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[invokeRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.Tool, "tool") {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	actx, err := h.authz.BuildContext(r.Context(), actor.UserID, actor.Role, actor.SessionID, nil)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	res, err := h.approvals.Invoke(r.Context(), req.Tool, req.Input, actx)
	if err != nil {
		writeDomainError(w, err, "tool invocation failed")
		return
	}

	status := http.StatusOK
	if res.RequiresApproval && res.ActionID != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// ---------------------------------------------------------------------------
// Pending actions
// ---------------------------------------------------------------------------

func (h *Handlers) ListPendingActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.approvals.ListPending(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"count":   len(actions),
	})
}

func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	p, err := h.approvals.GetPending(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) GetActionPreview(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	preview, err := h.approvals.DiffPreview(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "preview not found")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

type decisionRequest struct {
	Reason        string       `json:"reason"`
	ModifiedInput action.Input `json:"modified_input,omitempty"`
}

// ApproveAction approves a pending action and executes its tool. The
// execution outcome rides along in the response; a failed tool does not
// turn into an HTTP error because the approval itself succeeded.
func (h *Handlers) ApproveAction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decisionRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	actx, err := h.authz.BuildContext(r.Context(), actor.UserID, actor.Role, actor.SessionID, nil)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	exec, err := h.approvals.Approve(r.Context(), urlParam(r, "id"), actx, req.Reason, req.ModifiedInput)
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) RejectAction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decisionRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.Reason, "reason") {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	actx, err := h.authz.BuildContext(r.Context(), actor.UserID, actor.Role, actor.SessionID, nil)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	p, err := h.approvals.Reject(r.Context(), urlParam(r, "id"), actx, req.Reason)
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ---------------------------------------------------------------------------
// Rollback
// ---------------------------------------------------------------------------

type rollbackRequest struct {
	ActionID      string `json:"action_id"`
	RollbackToken string `json:"rollback_token"`
	Reason        string `json:"reason,omitempty"`
}

// RollbackAction reverses an executed action. A compensation failure is
// reported in the result body with Success=false; the token is consumed
// either way.
func (h *Handlers) RollbackAction(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[rollbackRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	if !requireField(w, req.ActionID, "action_id") {
		return
	}
	if !requireField(w, req.RollbackToken, "rollback_token") {
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	actx, err := h.authz.BuildContext(r.Context(), actor.UserID, actor.Role, actor.SessionID, nil)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	res, err := h.approvals.Rollback(r.Context(), action.RollbackRequest{
		ActionID:      req.ActionID,
		RollbackToken: req.RollbackToken,
		RequestedBy:   actor.UserID,
		Reason:        req.Reason,
	}, actx)
	if err != nil {
		writeDomainError(w, err, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// Stats and health
// ---------------------------------------------------------------------------

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.approvals.Stats(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"ws_connections": h.hub.ConnectionCount(),
	})
}
