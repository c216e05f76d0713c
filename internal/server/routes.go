package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/steward-ai/steward/internal/approval"
	"github.com/steward-ai/steward/internal/gate"
	"github.com/steward-ai/steward/internal/skill"
	"github.com/steward-ai/steward/internal/store"
)

// mutatingRequest is the body of every state-changing endpoint. The payload
// is kept as raw JSON so the approval hash is computed over exactly what the
// client sent.
type mutatingRequest struct {
	requestMeta
	Payload json.RawMessage `json:"payload"`
}

func decodeMutating(r *http.Request) (*mutatingRequest, error) {
	var req mutatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}
	return &req, nil
}

// handleEvaluate surfaces a bare gate decision: what would happen to this
// action at this level. REQUIRES_APPROVAL responses carry the proposal whose
// hash the client must echo back when recording the decision.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		requestMeta
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	action, err := gate.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"decision": gate.Rejected,
			"error":    err.Error(),
		})
		return
	}

	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}
	decision := s.gate.Evaluate(action, level)

	switch decision {
	case gate.Rejected:
		writeJSON(w, http.StatusForbidden, map[string]any{"decision": decision})
	case gate.RequiresApproval:
		prop, err := approval.Propose(action, req.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"decision": decision,
			"proposal": prop,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"decision": decision})
	}
}

func (s *Server) handleRecordApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string          `json:"user_id"`
		ActionType  string          `json:"action_type"`
		Payload     json.RawMessage `json:"payload"`
		PayloadHash string          `json:"payload_hash"`
		Approved    bool            `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	action, err := gate.ParseAction(req.ActionType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	meta := requestMeta{UserID: req.UserID}
	rec, err := s.ledger.Record(meta.userOrDefault(), action, req.Payload, req.PayloadHash, req.Approved)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	approvals, err := s.ledger.List(meta.userOrDefault(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func (s *Server) handleIngestMemory(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}
	userID := req.userOrDefault()

	if !s.authorize(w, gate.WriteMemory, level, userID, req.Payload, req.ApprovalID) {
		return
	}

	var p struct {
		Key   string   `json:"key"`
		Value string   `json:"value"`
		Tags  []string `json:"tags"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rec, err := s.memories.Ingest(userID, p.Key, p.Value, p.Tags)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleProcessConversation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}
	userID := req.userOrDefault()

	if !s.authorize(w, gate.WriteMemory, level, userID, req.Payload, req.ApprovalID) {
		return
	}

	var p struct {
		ConversationChunk string `json:"conversation_chunk"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if p.ConversationChunk == "" {
		writeError(w, http.StatusBadRequest, "conversation_chunk required")
		return
	}

	res, err := s.engine.ProcessConversation(r.Context(), userID, p.ConversationChunk)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}
	level, ok := s.resolveLevel(w, r, "")
	if !ok {
		return
	}

	if !s.authorize(w, gate.ReadMemory, level, meta.userOrDefault(), queryPayload(r), "") {
		return
	}

	rec, err := s.memories.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListMemory(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(chi.URLParam(r, "tier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}
	level, ok := s.resolveLevel(w, r, "")
	if !ok {
		return
	}

	if !s.authorize(w, gate.ReadMemory, level, meta.userOrDefault(), queryPayload(r), "") {
		return
	}

	memories, err := s.memories.List(meta.userOrDefault(), tier)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": tier, "memories": memories})
}

func (s *Server) handleSearchMemory(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(r.URL.Query().Get("tier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query().Get("q")
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}
	level, ok := s.resolveLevel(w, r, "")
	if !ok {
		return
	}

	if !s.authorize(w, gate.SearchMemory, level, meta.userOrDefault(), queryPayload(r), "") {
		return
	}

	memories, err := s.memories.Search(meta.userOrDefault(), tier, q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": tier, "memories": memories})
}

func (s *Server) handlePromoteMemory(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}

	if !s.authorize(w, gate.WriteMemory, level, req.userOrDefault(), req.Payload, req.ApprovalID) {
		return
	}

	rec, err := s.memories.Promote(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleArchiveMemory(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}

	if !s.authorize(w, gate.WriteMemory, level, req.userOrDefault(), req.Payload, req.ApprovalID) {
		return
	}

	var p struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rec, err := s.memories.Archive(chi.URLParam(r, "id"), p.Reason)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}

	if !s.authorize(w, gate.CreateSkill, level, req.userOrDefault(), req.Payload, req.ApprovalID) {
		return
	}

	var p struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		WhenToUse   string            `json:"when_to_use"`
		Steps       []store.SkillStep `json:"steps"`
		Tags        []string          `json:"tags"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	sk, err := s.skills.Create(p.Name, p.Description, p.WhenToUse, p.Steps, p.Tags)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sk)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	level, ok := s.resolveLevel(w, r, "")
	if !ok {
		return
	}
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}

	if !s.authorize(w, gate.SearchSkills, level, meta.userOrDefault(), queryPayload(r), "") {
		return
	}

	enabledOnly := r.URL.Query().Get("all") == ""
	skills, err := s.skills.List(enabledOnly)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": skills})
}

func (s *Server) handleSearchSkills(w http.ResponseWriter, r *http.Request) {
	level, ok := s.resolveLevel(w, r, "")
	if !ok {
		return
	}
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}

	if !s.authorize(w, gate.SearchSkills, level, meta.userOrDefault(), queryPayload(r), "") {
		return
	}

	skills, err := s.skills.Search(r.URL.Query().Get("q"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": skills})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	level, ok := s.resolveLevel(w, r, "")
	if !ok {
		return
	}
	meta := requestMeta{UserID: r.URL.Query().Get("user_id")}

	if !s.authorize(w, gate.SearchSkills, level, meta.userOrDefault(), queryPayload(r), "") {
		return
	}

	sk, err := s.skills.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func (s *Server) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}

	if !s.authorize(w, gate.UpdateSkill, level, req.userOrDefault(), req.Payload, req.ApprovalID) {
		return
	}

	var p struct {
		Name        *string            `json:"name"`
		Description *string            `json:"description"`
		WhenToUse   *string            `json:"when_to_use"`
		Steps       *[]store.SkillStep `json:"steps"`
		Tags        *[]string          `json:"tags"`
		IsEnabled   *bool              `json:"is_enabled"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	sk, err := s.skills.Update(chi.URLParam(r, "id"), skill.Patch{
		Name:        p.Name,
		Description: p.Description,
		WhenToUse:   p.WhenToUse,
		Steps:       p.Steps,
		Tags:        p.Tags,
		IsEnabled:   p.IsEnabled,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func (s *Server) handleDisableSkill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutating(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, ok := s.resolveLevel(w, r, req.PermissionLevel)
	if !ok {
		return
	}

	if !s.authorize(w, gate.UpdateSkill, level, req.userOrDefault(), req.Payload, req.ApprovalID) {
		return
	}

	sk, err := s.skills.Disable(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func parseTier(raw string) (string, error) {
	switch raw {
	case "hot", "HOT":
		return store.TierHot, nil
	case "cold", "COLD":
		return store.TierCold, nil
	case "archive", "ARCHIVE":
		return store.TierArchive, nil
	}
	return "", fmt.Errorf("unknown tier %q", raw)
}

// queryPayload renders a GET request's query parameters as a payload object,
// so a read that lands in REQUIRES_APPROVAL (draft mode) still produces a
// hashable proposal.
func queryPayload(r *http.Request) json.RawMessage {
	params := map[string]string{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
