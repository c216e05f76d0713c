package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/steward-ai/steward/internal/approval"
	"github.com/steward-ai/steward/internal/gate"
	"github.com/steward-ai/steward/internal/store"
)

// requestMeta is the common envelope of every mutating request: who is
// asking, at what ceiling, and — when resuming a suspended request — which
// recorded approval authorizes it.
type requestMeta struct {
	UserID          string `json:"user_id"`
	PermissionLevel string `json:"permission_level"`
	ApprovalID      string `json:"approval_id"`
}

func (m *requestMeta) userOrDefault() string {
	if m.UserID == "" {
		return "default_user"
	}
	return m.UserID
}

// levelFrom resolves the permission level from the request body or the
// X-Permission-Level header. An absent level defaults to READ_ONLY, the
// floor. A level that is present but unparseable is an error: a caller
// naming a level nobody recognizes gets nothing, not the floor.
func levelFrom(r *http.Request, bodyLevel string) (gate.Level, error) {
	raw := bodyLevel
	if raw == "" {
		raw = r.Header.Get("X-Permission-Level")
	}
	if raw == "" {
		return gate.ReadOnly, nil
	}
	return gate.ParseLevel(raw)
}

// resolveLevel is levelFrom plus the wire response: a malformed level writes
// a 403 rejection and reports false.
func (s *Server) resolveLevel(w http.ResponseWriter, r *http.Request, bodyLevel string) (gate.Level, bool) {
	level, err := levelFrom(r, bodyLevel)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"decision": gate.Rejected,
			"error":    err.Error(),
		})
		return "", false
	}
	return level, true
}

// authorize is the chokepoint for every handler. It evaluates the gate and
// translates the decision to the wire:
//
//   - REJECTED writes 403 and stops.
//   - EXECUTE_DIRECT lets the handler proceed.
//   - REQUIRES_APPROVAL: with a valid recorded approval (approved, same
//     action, same user, payload hash matching this exact payload) under
//     EXECUTE_APPROVED, the handler proceeds. Under DRAFT_ONLY it never
//     proceeds — approval or not, a draft stays a plan. Otherwise 202 with
//     the proposal the user must decide on.
//
// Returns true when the handler may execute.
func (s *Server) authorize(w http.ResponseWriter, action gate.Action, level gate.Level, userID string, payload json.RawMessage, approvalID string) bool {
	decision := s.gate.Evaluate(action, level)

	switch decision {
	case gate.Rejected:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"decision": decision,
			"error":    "action rejected",
		})
		return false

	case gate.ExecuteDirect:
		return true
	}

	// REQUIRES_APPROVAL from here on.
	prop, err := approval.Propose(action, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}

	if level == gate.ExecuteApproved && approvalID != "" {
		rec, err := s.db.GetApproval(approvalID)
		if err != nil {
			s.writeDomainError(w, err)
			return false
		}
		if !rec.Approved || rec.UserID != userID || rec.ActionType != string(action) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"decision": gate.Rejected,
				"error":    "approval does not authorize this action",
			})
			return false
		}
		if rec.PayloadHash != prop.PayloadHash {
			writeJSON(w, http.StatusConflict, map[string]any{
				"decision": gate.Rejected,
				"error":    "payload does not match approved payload",
			})
			return false
		}
		return true
	}

	resp := map[string]any{
		"decision": decision,
		"proposal": prop,
	}
	if level == gate.DraftOnly {
		resp["note"] = "draft only: approval records a plan, the action is never executed"
	}
	writeJSON(w, http.StatusAccepted, resp)
	return false
}

// writeDomainError maps the error taxonomy onto status codes. Timeouts are
// the only retryable case and say so.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gate.ErrRejected):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, approval.ErrIntegrity):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrTimeout):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": err.Error(),
			"retry": "safe to retry with backoff",
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
