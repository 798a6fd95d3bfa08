//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func doRequest(t *testing.T, method, path, actorID, role, session string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, testServer.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actorID)
	req.Header.Set("X-Actor-Role", role)
	req.Header.Set("X-Session-ID", session)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

// TestApprovalLifecycle drives propose, approve, execute, and rollback
// through the API against the real database.
func TestApprovalLifecycle(t *testing.T) {
	resp := doRequest(t, http.MethodPost, "/api/v1/actions/invoke", "rep-9", "sales_rep", "sess-int-1", map[string]any{
		"tool":  "create_case",
		"input": map[string]any{"subject": "Integration billing case"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("invoke: expected 202, got %d", resp.StatusCode)
	}
	invoked := decodeBody(t, resp)
	actionID, _ := invoked["action_id"].(string)
	if actionID == "" {
		t.Fatalf("expected action_id, got %v", invoked)
	}

	resp = doRequest(t, http.MethodGet, "/api/v1/actions/"+actionID, "sup-9", "supervisor", "sess-int-2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get action: expected 200, got %d", resp.StatusCode)
	}
	got := decodeBody(t, resp)
	if got["status"] != "PENDING" {
		t.Fatalf("expected PENDING, got %v", got["status"])
	}

	resp = doRequest(t, http.MethodPost, "/api/v1/actions/"+actionID+"/approve", "sup-9", "supervisor", "sess-int-2", map[string]any{
		"reason": "verified with customer",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}
	exec := decodeBody(t, resp)
	if exec["status"] != "APPROVED" {
		t.Fatalf("expected APPROVED, got %v", exec["status"])
	}
	token, _ := exec["rollback_token"].(string)
	if token == "" {
		t.Fatal("expected rollback token")
	}

	resp = doRequest(t, http.MethodPost, "/api/v1/actions/rollback", "sup-9", "supervisor", "sess-int-2", map[string]any{
		"action_id":      actionID,
		"rollback_token": token,
		"reason":         "case opened in error",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rollback: expected 200, got %d", resp.StatusCode)
	}
	rb := decodeBody(t, resp)
	if rb["success"] != true {
		t.Fatalf("expected successful rollback, got %v", rb)
	}

	// The token is single use.
	resp = doRequest(t, http.MethodPost, "/api/v1/actions/rollback", "sup-9", "supervisor", "sess-int-2", map[string]any{
		"action_id":      actionID,
		"rollback_token": token,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second rollback: expected 409, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

// TestDecisionConflictPersisted verifies the CAS guard in the database:
// a rejected action cannot later be approved.
func TestDecisionConflictPersisted(t *testing.T) {
	resp := doRequest(t, http.MethodPost, "/api/v1/actions/invoke", "rep-9", "sales_rep", "sess-int-3", map[string]any{
		"tool":  "update_deal",
		"input": map[string]any{"deal_id": "deal-1", "stage": "closed_won"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("invoke: expected 202, got %d", resp.StatusCode)
	}
	invoked := decodeBody(t, resp)
	actionID, _ := invoked["action_id"].(string)

	resp = doRequest(t, http.MethodPost, "/api/v1/actions/"+actionID+"/reject", "sup-9", "supervisor", "sess-int-4", map[string]any{
		"reason": "stage change not justified",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doRequest(t, http.MethodPost, "/api/v1/actions/"+actionID+"/approve", "sup-9", "supervisor", "sess-int-4", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("approve after reject: expected 409, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

// TestAuditTrailWritten checks the audit sink persisted entries for the
// lifecycle tests above.
func TestAuditTrailWritten(t *testing.T) {
	var count int
	err := testPool.QueryRow(t.Context(), "SELECT COUNT(*) FROM audit_entries").Scan(&count)
	if err != nil {
		t.Fatalf("count audit entries: %v", err)
	}
	if count == 0 {
		t.Fatal("expected audit entries after lifecycle tests")
	}
}
