package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/nexocrm/agentgate/internal/adapter/memory"
	"github.com/nexocrm/agentgate/internal/adapter/ws"
	"github.com/nexocrm/agentgate/internal/domain/authz"
	"github.com/nexocrm/agentgate/internal/service"
	"github.com/nexocrm/agentgate/internal/tool"
	"github.com/nexocrm/agentgate/internal/tool/crm"
)

type testServer struct {
	router http.Handler
	crm    *crm.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	sink := memory.NewAuditSink()
	registry := tool.NewRegistry()

	crmStore := crm.NewStore()
	crmStore.Seed(
		[]crm.Lead{{ID: "l1", Name: "Ada Nowak", Company: "Acme Corp", OwnerID: "rep-1"}},
		[]crm.Deal{{ID: "d1", Name: "Acme renewal", Stage: "negotiation", Amount: 50000, OwnerID: "rep-1"}},
	)
	if err := crm.RegisterAll(registry, crmStore); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	authzSvc := service.NewAuthorizationService(authz.NewTable(nil), memory.NewSessions(), sink, nil)
	approvals := service.NewApprovalService(store, registry, authzSvc, sink, nil, nil, nil, nil, nil)

	h := NewHandlers(approvals, authzSvc, ws.NewHub())
	r := chi.NewRouter()
	MountRoutes(r, h)

	return &testServer{router: r, crm: crmStore}
}

type actor struct {
	id      string
	role    string
	session string
}

var (
	rep        = actor{id: "rep-1", role: "sales_rep", session: "sess-1"}
	supervisor = actor{id: "sup-1", role: "supervisor", session: "sess-2"}
)

func (ts *testServer) do(t *testing.T, method, path string, a *actor, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if a != nil {
		req.Header.Set("X-Actor-ID", a.id)
		req.Header.Set("X-Actor-Role", a.role)
		req.Header.Set("X-Session-ID", a.session)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// proposeCase invokes create_case as a sales rep and returns the pending
// action ID.
func (ts *testServer) proposeCase(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/actions/invoke", &rep, map[string]any{
		"tool":  "create_case",
		"input": map[string]any{"subject": "Billing dispute", "lead_id": "l1"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("invoke create_case: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[map[string]any](t, rec)
	id, _ := res["action_id"].(string)
	if id == "" {
		t.Fatalf("expected action_id in response, got %v", res)
	}
	return id
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestActorHeadersRequired(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/actions/pending", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor headers, got %d", rec.Code)
	}
}

func TestInvokeExemptTool(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/actions/invoke", &rep, map[string]any{
		"tool":  "search_leads",
		"input": map[string]any{"query": "acme"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[map[string]any](t, rec)
	if res["success"] != true {
		t.Errorf("expected success, got %v", res)
	}
	if res["requires_approval"] != false {
		t.Errorf("search should be approval-exempt, got %v", res)
	}
}

func TestInvokeValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/actions/invoke", &rep, map[string]any{
		"input": map[string]any{"query": "acme"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tool: expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions/invoke", bytes.NewBufferString("{not json"))
	req.Header.Set("X-Actor-ID", rep.id)
	req.Header.Set("X-Actor-Role", rep.role)
	req.Header.Set("X-Session-ID", rep.session)
	rec2 := httptest.NewRecorder()
	ts.router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec2.Code)
	}
}

func TestInvokeUnknownToolReportedInBand(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/actions/invoke", &rep, map[string]any{
		"tool": "no_such_tool",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[map[string]any](t, rec)
	if res["success"] != false {
		t.Errorf("expected in-band failure, got %v", res)
	}
}

func TestInvokeDenialReportedInBand(t *testing.T) {
	ts := newTestServer(t)
	readonly := actor{id: "viewer-1", role: "readonly", session: "sess-9"}
	rec := ts.do(t, http.MethodPost, "/api/v1/actions/invoke", &readonly, map[string]any{
		"tool":  "create_case",
		"input": map[string]any{"subject": "Hello"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[map[string]any](t, rec)
	if res["success"] != false {
		t.Errorf("expected denial in result, got %v", res)
	}
}

func TestPendingActionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.proposeCase(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/actions/pending", &supervisor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list pending: expected 200, got %d", rec.Code)
	}
	list := decode[map[string]any](t, rec)
	if count, _ := list["count"].(float64); count != 1 {
		t.Errorf("expected 1 pending action, got %v", list["count"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/actions/"+id, &supervisor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get action: expected 200, got %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "PENDING" {
		t.Errorf("expected PENDING, got %v", got["status"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/actions/"+id+"/preview", &supervisor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get preview: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetActionNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/actions/nope", &supervisor, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestApproveExecutesAction(t *testing.T) {
	ts := newTestServer(t)
	id := ts.proposeCase(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/actions/"+id+"/approve", &supervisor, map[string]any{
		"reason": "looks fine",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	exec := decode[map[string]any](t, rec)
	if exec["status"] != "APPROVED" {
		t.Errorf("expected APPROVED, got %v", exec["status"])
	}
	if exec["rollback_available"] != true {
		t.Errorf("create_case should be reversible, got %v", exec)
	}
	if token, _ := exec["rollback_token"].(string); token == "" {
		t.Error("expected a rollback token")
	}
}

func TestApproveDeniedForSalesRep(t *testing.T) {
	ts := newTestServer(t)
	id := ts.proposeCase(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/actions/"+id+"/approve", &rep, map[string]any{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRejectAction(t *testing.T) {
	ts := newTestServer(t)
	id := ts.proposeCase(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/actions/"+id+"/reject", &supervisor, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reject without reason: expected 400, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/actions/"+id+"/reject", &supervisor, map[string]any{
		"reason": "duplicate case",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "REJECTED" {
		t.Errorf("expected REJECTED, got %v", got["status"])
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/actions/"+id+"/approve", &supervisor, map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Errorf("approve after reject: expected 409, got %d", rec.Code)
	}
}

func TestRollbackFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.proposeCase(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/actions/"+id+"/approve", &supervisor, map[string]any{})
	exec := decode[map[string]any](t, rec)
	token, _ := exec["rollback_token"].(string)
	if token == "" {
		t.Fatal("expected rollback token")
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/actions/rollback", &supervisor, map[string]any{
		"action_id":      id,
		"rollback_token": token,
		"reason":         "customer withdrew",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[map[string]any](t, rec)
	if res["success"] != true {
		t.Errorf("expected successful rollback, got %v", res)
	}
	if got := len(ts.crm.RollbackRecords()); got != 1 {
		t.Errorf("expected 1 rollback record in the CRM store, got %d", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/actions/rollback", &supervisor, map[string]any{
		"action_id":      id,
		"rollback_token": token,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second rollback: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRollbackInvalidToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/actions/rollback", &supervisor, map[string]any{
		"action_id":      "a1",
		"rollback_token": "bogus",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRollbackValidation(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/actions/rollback", &supervisor, map[string]any{
		"action_id": "a1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ts.proposeCase(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/stats", &supervisor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stats := decode[map[string]any](t, rec)
	if pending, _ := stats["pending"].(float64); pending != 1 {
		t.Errorf("expected 1 pending, got %v", stats["pending"])
	}
}
