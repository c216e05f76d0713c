package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/steward-ai/steward/internal/engine"
	"github.com/steward-ai/steward/internal/gate"
	"github.com/steward-ai/steward/internal/llm"
	"github.com/steward-ai/steward/internal/memory"
	"github.com/steward-ai/steward/internal/skill"
	"github.com/steward-ai/steward/internal/store"
)

func newTestServer(t *testing.T) (*Server, *llm.MockClient) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock := &llm.MockClient{Response: &llm.Response{Content: "{}", Provider: "mock"}}
	mem := memory.NewManager(db, 0)
	skills := skill.NewStore(db)
	eng := engine.New(mem, skills, mock)
	return New(db, gate.New(), mem, skills, eng, "test"), mock
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad response body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

// approveAndDo runs the suspend/approve/resume dance for one mutating
// request: submit at EXECUTE_APPROVED, expect 202 with a proposal, record
// an approval echoing the proposal hash, then resubmit with the approval id.
func approveAndDo(t *testing.T, s *Server, method, path, action, payload string) map[string]any {
	t.Helper()
	body := `{"permission_level": "EXECUTE_APPROVED", "payload": ` + payload + `}`
	w, out := doJSON(t, s, method, path, body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("%s %s: code = %d, want 202 (body %v)", method, path, w.Code, out)
	}
	prop, ok := out["proposal"].(map[string]any)
	if !ok {
		t.Fatalf("%s %s: no proposal in %v", method, path, out)
	}
	hash, _ := prop["payload_hash"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "`+action+`", "payload": `+payload+`, "payload_hash": "`+hash+`", "approved": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("record approval: code = %d (body %v)", w.Code, out)
	}
	approvalID, _ := out["id"].(string)

	w, out = doJSON(t, s, method, path,
		`{"permission_level": "EXECUTE_APPROVED", "approval_id": "`+approvalID+`", "payload": `+payload+`}`)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("resume %s %s: code = %d (body %v)", method, path, w.Code, out)
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := doJSON(t, s, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if out["status"] != "ok" || out["db"] != true {
		t.Errorf("health = %v", out)
	}
	if out["version"] != "test" {
		t.Errorf("version = %v", out["version"])
	}
}

func TestEvaluateEndpointStatusCodes(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		action, level string
		wantCode      int
		wantDecision  string
	}{
		{"read_memory", "READ_ONLY", http.StatusOK, string(gate.ExecuteDirect)},
		{"read_memory", "EXECUTE_APPROVED", http.StatusOK, string(gate.ExecuteDirect)},
		{"create_note", "EXECUTE_APPROVED", http.StatusAccepted, string(gate.RequiresApproval)},
		{"create_note", "READ_ONLY", http.StatusForbidden, string(gate.Rejected)},
		{"read_memory", "DRAFT_ONLY", http.StatusAccepted, string(gate.RequiresApproval)},
		{"run_shell", "EXECUTE_APPROVED", http.StatusForbidden, string(gate.Rejected)},
		{"summon_demons", "EXECUTE_APPROVED", http.StatusForbidden, string(gate.Rejected)},
	}
	for _, tc := range cases {
		w, out := doJSON(t, s, http.MethodPost, "/api/actions/evaluate",
			`{"action": "`+tc.action+`", "permission_level": "`+tc.level+`", "payload": {"x": 1}}`)
		if w.Code != tc.wantCode {
			t.Errorf("%s at %s: code = %d, want %d", tc.action, tc.level, w.Code, tc.wantCode)
		}
		if out["decision"] != tc.wantDecision {
			t.Errorf("%s at %s: decision = %v, want %s", tc.action, tc.level, out["decision"], tc.wantDecision)
		}
	}
}

func TestEvaluateCarriesProposal(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := doJSON(t, s, http.MethodPost, "/api/actions/evaluate",
		`{"action": "create_note", "permission_level": "EXECUTE_APPROVED", "payload": {"to": "a@b.com"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d", w.Code)
	}
	prop, ok := out["proposal"].(map[string]any)
	if !ok {
		t.Fatalf("no proposal: %v", out)
	}
	if prop["action_type"] != "create_note" {
		t.Errorf("action_type = %v", prop["action_type"])
	}
	if hash, _ := prop["payload_hash"].(string); len(hash) != 64 {
		t.Errorf("payload_hash = %v", prop["payload_hash"])
	}
}

func TestMalformedLevelRejected(t *testing.T) {
	s, _ := newTestServer(t)

	// A write with a nonsense level is rejected, not silently downgraded.
	w, out := doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "SUDO", "payload": {"key": "k", "value": "v"}}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("write: code = %d, want 403 (body %v)", w.Code, out)
	}

	// A read with a nonsense level is rejected too: READ_ONLY is the default
	// for an absent level, never the fallback for a malformed one.
	req := httptest.NewRequest(http.MethodGet, "/api/memory/hot", nil)
	req.Header.Set("X-Permission-Level", "SUDO")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("read: code = %d, want 403 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestAbsentLevelDefaultsToReadOnly(t *testing.T) {
	s, _ := newTestServer(t)

	// No level anywhere: reads execute at the READ_ONLY floor.
	w, out := doJSON(t, s, http.MethodGet, "/api/memory/hot", "")
	if w.Code != http.StatusOK {
		t.Errorf("read: code = %d, want 200 (body %v)", w.Code, out)
	}

	// The floor still blocks writes.
	w, out = doJSON(t, s, http.MethodPost, "/api/memory",
		`{"payload": {"key": "k", "value": "v"}}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("write: code = %d, want 403 (body %v)", w.Code, out)
	}
}
