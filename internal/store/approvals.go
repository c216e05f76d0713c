package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Approval is one immutable ledger row. There is no update path: once a
// decision is written it stands.
type Approval struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ActionType  string `json:"action_type"`
	Payload     string `json:"payload"` // canonical JSON as hashed
	PayloadHash string `json:"payload_hash"`
	Approved    bool   `json:"approved"`
	DecidedAt   int64  `json:"decided_at"`
}

const approvalCols = `id, user_id, action_type, payload, payload_hash, approved, decided_at`

// CreateApproval inserts a decision row. The approval package verifies the
// payload hash before this is ever called; the store just persists.
func (db *DB) CreateApproval(a *Approval) error {
	if a.ID == "" {
		a.ID = db.NewID()
	}
	a.DecidedAt = time.Now().UnixMilli()

	approved := 0
	if a.Approved {
		approved = 1
	}
	_, err := db.Exec(`
		INSERT INTO approvals (id, user_id, action_type, payload, payload_hash, approved, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.ActionType, a.Payload, a.PayloadHash, approved, a.DecidedAt)
	if err != nil {
		return wrapBusy(fmt.Errorf("create approval: %w", err))
	}
	return nil
}

// GetApproval returns a ledger row by id, or ErrNotFound.
func (db *DB) GetApproval(id string) (*Approval, error) {
	row := db.QueryRow(`SELECT `+approvalCols+` FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

// ListApprovals returns a user's decisions, most recent first.
func (db *DB) ListApprovals(userID string, limit int) ([]Approval, error) {
	rows, err := db.Query(`
		SELECT `+approvalCols+` FROM approvals
		WHERE user_id = ?
		ORDER BY decided_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CountApprovals returns the total number of ledger rows. Used by tests to
// assert that failed integrity checks persist nothing.
func (db *DB) CountApprovals() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM approvals`).Scan(&n)
	return n, err
}

func scanApproval(r rowScanner) (*Approval, error) {
	var a Approval
	var approved int
	err := r.Scan(&a.ID, &a.UserID, &a.ActionType, &a.Payload, &a.PayloadHash, &approved, &a.DecidedAt)
	if err != nil {
		return nil, err
	}
	a.Approved = approved != 0
	return &a, nil
}
