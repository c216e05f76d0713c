// Package approval records user decisions over proposed actions. A proposal
// carries a hash of its exact payload; recording a decision re-verifies that
// hash so an approval can never be attached to a different action than the one
// shown to the user.
//
// Pending proposals have no expiry: a REQUIRES_APPROVAL request stays pending
// until an explicit decision arrives or the caller abandons it. Nothing here
// schedules anything.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/steward-ai/steward/internal/gate"
	"github.com/steward-ai/steward/internal/store"
)

// ErrIntegrity marks a payload-hash mismatch: the payload offered for
// recording is not the payload that was proposed. Nothing is persisted.
var ErrIntegrity = errors.New("payload integrity check failed")

// Proposal is what the user is shown before deciding. Pure data; nothing is
// persisted at proposal time.
type Proposal struct {
	ActionType  gate.Action     `json:"action_type"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
}

// Ledger writes approval decisions.
type Ledger struct {
	db *store.DB
}

// NewLedger returns a Ledger over the given store.
func NewLedger(db *store.DB) *Ledger {
	return &Ledger{db: db}
}

// HashPayload computes the stable hash of a payload: sha256 hex over
// canonical JSON. Canonical form is reached by decoding and re-encoding,
// which sorts object keys at every level, so two spellings of the same
// payload hash identically.
func HashPayload(payload json.RawMessage) (string, error) {
	canonical, err := canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Propose computes the hash for an action payload. Pure: no I/O, nothing
// recorded.
func Propose(action gate.Action, payload json.RawMessage) (*Proposal, error) {
	h, err := HashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("propose %s: %w", action, err)
	}
	return &Proposal{ActionType: action, Payload: payload, PayloadHash: h}, nil
}

// Record persists a decision. The payload hash is recomputed from the supplied
// payload and must match the hash produced at proposal time exactly; on
// mismatch the ledger is untouched and ErrIntegrity is returned. A missing
// hash is a mismatch, never a pass.
//
// Approval gates execution only under EXECUTE_APPROVED. Under DRAFT_ONLY the
// decision is recorded all the same, but the action is never executed — the
// approval is a plan artifact.
func (l *Ledger) Record(userID string, action gate.Action, payload json.RawMessage, suppliedHash string, approved bool) (*store.Approval, error) {
	computed, err := HashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", action, err)
	}
	if suppliedHash == "" || suppliedHash != computed {
		log.Printf("approval: integrity failure user=%s action=%s", userID, action)
		return nil, fmt.Errorf("%w: action %s", ErrIntegrity, action)
	}

	canonical, err := canonicalize(payload)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", action, err)
	}

	rec := &store.Approval{
		UserID:      userID,
		ActionType:  string(action),
		Payload:     string(canonical),
		PayloadHash: computed,
		Approved:    approved,
	}
	if err := l.db.CreateApproval(rec); err != nil {
		return nil, err
	}
	log.Printf("approval: recorded user=%s action=%s approved=%t", userID, action, approved)
	return rec, nil
}

// List returns a user's decisions, most recent first.
func (l *Ledger) List(userID string, limit int) ([]store.Approval, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.db.ListApprovals(userID, limit)
}

// canonicalize decodes arbitrary JSON and re-encodes it. encoding/json
// emits map keys sorted, which makes the output stable across callers.
func canonicalize(payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("invalid payload json: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return out, nil
}
