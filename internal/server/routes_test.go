package server

import (
	"net/http"
	"testing"

	"github.com/steward-ai/steward/internal/llm"
)

func TestWriteRejectedAtReadOnly(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "READ_ONLY", "payload": {"key": "k", "value": "v"}}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403 (body %v)", w.Code, out)
	}
	if out["decision"] != "REJECTED" {
		t.Errorf("decision = %v", out["decision"])
	}
}

func TestWriteSuspendsWithoutApproval(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "EXECUTE_APPROVED", "payload": {"key": "k", "value": "v"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202 (body %v)", w.Code, out)
	}
	prop := out["proposal"].(map[string]any)
	if prop["action_type"] != "write_memory" {
		t.Errorf("action_type = %v", prop["action_type"])
	}

	// Nothing was written while suspended.
	w, out = doJSON(t, s, http.MethodGet, "/api/memory/hot", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: code = %d", w.Code)
	}
	if out["memories"] != nil {
		t.Errorf("memories = %v, want none", out["memories"])
	}
}

func TestApprovalResumeFlow(t *testing.T) {
	s, _ := newTestServer(t)

	rec := approveAndDo(t, s, http.MethodPost, "/api/memory", "write_memory",
		`{"key": "contact", "value": "mail me at jane@example.com", "tags": ["personal"]}`)

	if rec["tier"] != "HOT" {
		t.Errorf("tier = %v", rec["tier"])
	}
	// Ingest redacts before persisting, approval flow or not.
	if v, _ := rec["value"].(string); v != "mail me at [EMAIL_REDACTED]" {
		t.Errorf("value = %q", v)
	}

	w, out := doJSON(t, s, http.MethodGet, "/api/memory/hot", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: code = %d", w.Code)
	}
	if memories, _ := out["memories"].([]any); len(memories) != 1 {
		t.Errorf("memories = %v", out["memories"])
	}
}

func TestTamperedPayloadRejectedWithConflict(t *testing.T) {
	s, _ := newTestServer(t)

	approved := `{"key": "note", "value": "benign"}`
	w, out := doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "EXECUTE_APPROVED", "payload": `+approved+`}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d", w.Code)
	}
	hash := out["proposal"].(map[string]any)["payload_hash"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "write_memory", "payload": `+approved+`, "payload_hash": "`+hash+`", "approved": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("record: code = %d (body %v)", w.Code, out)
	}
	approvalID := out["id"].(string)

	// Resume with a different payload than what was approved.
	w, out = doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "EXECUTE_APPROVED", "approval_id": "`+approvalID+`", "payload": {"key": "note", "value": "malicious"}}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409 (body %v)", w.Code, out)
	}

	w, out = doJSON(t, s, http.MethodGet, "/api/memory/hot", "")
	if out["memories"] != nil {
		t.Errorf("tampered payload persisted: %v", out["memories"])
	}
	_ = w
}

func TestRecordApprovalWrongHash(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "create_note", "payload": {"to": "a@b.com"}, "payload_hash": "deadbeef", "approved": true}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409 (body %v)", w.Code, out)
	}

	w, out = doJSON(t, s, http.MethodGet, "/api/approvals", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: code = %d", w.Code)
	}
	if out["approvals"] != nil {
		t.Errorf("mismatched hash was persisted: %v", out["approvals"])
	}
}

func TestDeniedApprovalDoesNotAuthorize(t *testing.T) {
	s, _ := newTestServer(t)

	payload := `{"key": "k", "value": "v"}`
	w, out := doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "EXECUTE_APPROVED", "payload": `+payload+`}`)
	hash := out["proposal"].(map[string]any)["payload_hash"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "write_memory", "payload": `+payload+`, "payload_hash": "`+hash+`", "approved": false}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("denial must still be recorded: code = %d (body %v)", w.Code, out)
	}
	approvalID := out["id"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "EXECUTE_APPROVED", "approval_id": "`+approvalID+`", "payload": `+payload+`}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403 (body %v)", w.Code, out)
	}
}

func TestApprovalBoundToAction(t *testing.T) {
	s, _ := newTestServer(t)

	// Record an approval for create_note, then try to spend it on write_memory.
	payload := `{"key": "k", "value": "v"}`
	w, out := doJSON(t, s, http.MethodPost, "/api/actions/evaluate",
		`{"action": "create_note", "permission_level": "EXECUTE_APPROVED", "payload": `+payload+`}`)
	hash := out["proposal"].(map[string]any)["payload_hash"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "create_note", "payload": `+payload+`, "payload_hash": "`+hash+`", "approved": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("record: code = %d", w.Code)
	}
	approvalID := out["id"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "EXECUTE_APPROVED", "approval_id": "`+approvalID+`", "payload": `+payload+`}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403 (body %v)", w.Code, out)
	}
}

func TestDraftOnlyNeverExecutes(t *testing.T) {
	s, _ := newTestServer(t)

	payload := `{"key": "k", "value": "v"}`
	w, out := doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "DRAFT_ONLY", "payload": `+payload+`}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202 (body %v)", w.Code, out)
	}
	if out["note"] == nil {
		t.Error("draft response missing note")
	}
	hash := out["proposal"].(map[string]any)["payload_hash"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "write_memory", "payload": `+payload+`, "payload_hash": "`+hash+`", "approved": true}`)
	approvalID := out["id"].(string)

	// Even a valid recorded approval does not execute under DRAFT_ONLY.
	w, out = doJSON(t, s, http.MethodPost, "/api/memory",
		`{"permission_level": "DRAFT_ONLY", "approval_id": "`+approvalID+`", "payload": `+payload+`}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202 (body %v)", w.Code, out)
	}

	w, out = doJSON(t, s, http.MethodGet, "/api/memory/hot", "")
	if out["memories"] != nil {
		t.Errorf("draft executed: %v", out["memories"])
	}
	_ = w
}

func TestMemoryLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := approveAndDo(t, s, http.MethodPost, "/api/memory", "write_memory",
		`{"key": "home_city", "value": "Lisbon"}`)
	id := rec["id"].(string)

	// Reads need no envelope: absent level means READ_ONLY, and reads pass.
	w, out := doJSON(t, s, http.MethodGet, "/api/memory/id/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: code = %d (body %v)", w.Code, out)
	}
	if out["renewed_count"] != float64(1) {
		t.Errorf("renewed_count = %v, want 1 (get renews)", out["renewed_count"])
	}

	out = approveAndDo(t, s, http.MethodPost, "/api/memory/id/"+id+"/promote", "write_memory", `{}`)
	if out["tier"] != "COLD" || out["expires_at"] != nil {
		t.Errorf("promoted = %v", out)
	}

	out = approveAndDo(t, s, http.MethodPost, "/api/memory/id/"+id+"/archive", "write_memory",
		`{"reason": "stale"}`)
	if out["tier"] != "ARCHIVE" || out["archived_reason"] != "stale" {
		t.Errorf("archived = %v", out)
	}

	w, out = doJSON(t, s, http.MethodGet, "/api/memory/archive", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list archive: code = %d", w.Code)
	}
	if memories, _ := out["memories"].([]any); len(memories) != 1 {
		t.Errorf("archive = %v", out["memories"])
	}
}

func TestSearchMemoryEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	approveAndDo(t, s, http.MethodPost, "/api/memory", "write_memory",
		`{"key": "coffee_order", "value": "oat flat white"}`)
	approveAndDo(t, s, http.MethodPost, "/api/memory", "write_memory",
		`{"key": "tea_order", "value": "sencha"}`)

	w, out := doJSON(t, s, http.MethodGet, "/api/memory/search?tier=hot&q=coffee", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d (body %v)", w.Code, out)
	}
	memories, _ := out["memories"].([]any)
	if len(memories) != 1 {
		t.Fatalf("memories = %v", out["memories"])
	}
}

func TestListMemoryUnknownTier(t *testing.T) {
	s, _ := newTestServer(t)
	w, _ := doJSON(t, s, http.MethodGet, "/api/memory/lukewarm", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w, _ := doJSON(t, s, http.MethodGet, "/api/memory/id/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestProcessConversationEndpoint(t *testing.T) {
	s, mock := newTestServer(t)
	mock.Response = &llm.Response{
		Content:  `{"memories": [{"key": "shift", "value": "09:00-18:00", "stable": false}]}`,
		Provider: "mock",
	}

	out := approveAndDo(t, s, http.MethodPost, "/api/memory/process", "write_memory",
		`{"conversation_chunk": "my shift is 09:00-18:00"}`)
	if hot, _ := out["hot_created"].([]any); len(hot) != 1 {
		t.Errorf("hot_created = %v", out["hot_created"])
	}
}

func TestSkillLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	sk := approveAndDo(t, s, http.MethodPost, "/api/skills", "create_skill",
		`{"name": "morning_brief", "description": "daily summary", "when_to_use": "mornings",
		  "steps": [{"order": 1, "action": "read_tasks", "description": "today's open tasks"}],
		  "tags": ["routine"]}`)
	if sk["version"] != float64(1) || sk["is_enabled"] != true {
		t.Fatalf("created = %v", sk)
	}
	id := sk["id"].(string)

	w, out := doJSON(t, s, http.MethodGet, "/api/skills/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: code = %d", w.Code)
	}
	if out["name"] != "morning_brief" {
		t.Errorf("name = %v", out["name"])
	}

	sk = approveAndDo(t, s, http.MethodPut, "/api/skills/"+id, "update_skill",
		`{"description": "expanded daily summary"}`)
	if sk["version"] != float64(2) {
		t.Errorf("version = %v, want 2", sk["version"])
	}

	sk = approveAndDo(t, s, http.MethodDelete, "/api/skills/"+id, "update_skill", `{}`)
	if sk["is_enabled"] != false {
		t.Errorf("disable: is_enabled = %v", sk["is_enabled"])
	}

	// Disabled skills fall out of the default listing but stay with ?all.
	w, out = doJSON(t, s, http.MethodGet, "/api/skills", "")
	if skills, _ := out["skills"].([]any); len(skills) != 0 {
		t.Errorf("default list = %v", out["skills"])
	}
	w, out = doJSON(t, s, http.MethodGet, "/api/skills?all=1", "")
	if skills, _ := out["skills"].([]any); len(skills) != 1 {
		t.Errorf("all list = %v", out["skills"])
	}
}

func TestCreateSkillForbiddenStepAction(t *testing.T) {
	s, _ := newTestServer(t)

	payload := `{"name": "bad", "description": "d", "when_to_use": "w",
		"steps": [{"order": 1, "action": "run_shell", "description": "nope"}]}`
	w, out := doJSON(t, s, http.MethodPost, "/api/skills",
		`{"permission_level": "EXECUTE_APPROVED", "payload": `+payload+`}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d", w.Code)
	}
	hash := out["proposal"].(map[string]any)["payload_hash"].(string)

	w, out = doJSON(t, s, http.MethodPost, "/api/approvals",
		`{"action_type": "create_skill", "payload": `+payload+`, "payload_hash": "`+hash+`", "approved": true}`)
	approvalID := out["id"].(string)

	// The approval clears the gate but the skill body itself is invalid.
	w, out = doJSON(t, s, http.MethodPost, "/api/skills",
		`{"permission_level": "EXECUTE_APPROVED", "approval_id": "`+approvalID+`", "payload": `+payload+`}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403 (body %v)", w.Code, out)
	}
}

func TestSearchSkillsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	approveAndDo(t, s, http.MethodPost, "/api/skills", "create_skill",
		`{"name": "summary_maker", "description": "d", "when_to_use": "w",
		  "steps": [{"order": 1, "action": "read_notes", "description": "s"}]}`)

	w, out := doJSON(t, s, http.MethodGet, "/api/skills/search?q=summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if skills, _ := out["skills"].([]any); len(skills) != 1 {
		t.Errorf("skills = %v", out["skills"])
	}
}

func TestListApprovalsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	approveAndDo(t, s, http.MethodPost, "/api/memory", "write_memory", `{"key": "a", "value": "1"}`)
	approveAndDo(t, s, http.MethodPost, "/api/memory", "write_memory", `{"key": "b", "value": "2"}`)

	w, out := doJSON(t, s, http.MethodGet, "/api/approvals?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	approvals, _ := out["approvals"].([]any)
	if len(approvals) != 2 {
		t.Fatalf("approvals = %v", out["approvals"])
	}
	for _, a := range approvals {
		row := a.(map[string]any)
		if row["action_type"] != "write_memory" || row["approved"] != true {
			t.Errorf("row = %v", row)
		}
	}
}
