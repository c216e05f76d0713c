package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Memory tiers. HOT records carry a TTL and renew on access, COLD records are
// permanent, ARCHIVE is the terminal tombstone state.
const (
	TierHot     = "HOT"
	TierCold    = "COLD"
	TierArchive = "ARCHIVE"
)

// Memory is one tiered memory record. Rows are never deleted; archival is the
// only way out of HOT or COLD.
type Memory struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	Tier           string   `json:"tier"`
	Key            string   `json:"key"`
	Value          string   `json:"value"`
	Tags           []string `json:"tags"`
	ExpiresAt      *int64   `json:"expires_at"` // unix ms, HOT only
	RenewedCount   int      `json:"renewed_count"`
	ArchivedReason string   `json:"archived_reason,omitempty"` // ARCHIVE only
	ArchivedAt     *int64   `json:"archived_at,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

const memoryCols = `id, user_id, tier, key, value, tags, expires_at, renewed_count,
	archived_reason, archived_at, created_at, updated_at`

// CreateMemory inserts a new memory record, assigning its id and timestamps.
func (db *DB) CreateMemory(m *Memory) error {
	now := time.Now().UnixMilli()
	if m.ID == "" {
		m.ID = db.NewID()
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO memories (id, user_id, tier, key, value, tags, expires_at, renewed_count,
			archived_reason, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
	`, m.ID, m.UserID, m.Tier, m.Key, m.Value, string(tags), m.ExpiresAt, m.RenewedCount,
		m.ArchivedReason, m.ArchivedAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return wrapBusy(fmt.Errorf("create memory: %w", err))
	}
	return nil
}

// GetMemory returns a memory record by id, or ErrNotFound.
func (db *DB) GetMemory(id string) (*Memory, error) {
	row := db.QueryRow(`SELECT `+memoryCols+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// UpdateMemory writes a record's mutable lifecycle fields and updated_at.
func (db *DB) UpdateMemory(m *Memory) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE memories SET tier = ?, expires_at = ?, renewed_count = ?,
			archived_reason = NULLIF(?, ''), archived_at = ?, updated_at = ?
		WHERE id = ?
	`, m.Tier, m.ExpiresAt, m.RenewedCount, m.ArchivedReason, m.ArchivedAt, now, m.ID)
	if err != nil {
		return wrapBusy(fmt.Errorf("update memory: %w", err))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory %s: %w", m.ID, ErrNotFound)
	}
	m.UpdatedAt = now
	return nil
}

// ListMemories returns a user's records in one tier, newest first.
func (db *DB) ListMemories(userID, tier string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryCols+` FROM memories
		WHERE user_id = ? AND tier = ?
		ORDER BY id DESC
	`, userID, tier)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListExpiredHot returns a user's HOT records whose TTL has lapsed at the
// given instant. Callers archive these inline before serving any read.
func (db *DB) ListExpiredHot(userID string, now int64) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryCols+` FROM memories
		WHERE user_id = ? AND tier = 'HOT' AND expires_at < ?
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list expired hot: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories does a case-insensitive substring match over key, value and
// tags within one tier, newest first.
func (db *DB) SearchMemories(userID, tier, query string) ([]Memory, error) {
	like := "%" + query + "%"
	rows, err := db.Query(`
		SELECT `+memoryCols+` FROM memories
		WHERE user_id = ? AND tier = ?
		  AND (key LIKE ? COLLATE NOCASE OR value LIKE ? COLLATE NOCASE OR tags LIKE ? COLLATE NOCASE)
		ORDER BY id DESC
	`, userID, tier, like, like, like)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(r rowScanner) (*Memory, error) {
	var m Memory
	var tags string
	var expiresAt, archivedAt sql.NullInt64
	var archivedReason sql.NullString
	err := r.Scan(&m.ID, &m.UserID, &m.Tier, &m.Key, &m.Value, &tags,
		&expiresAt, &m.RenewedCount, &archivedReason, &archivedAt,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Int64
	}
	if archivedAt.Valid {
		m.ArchivedAt = &archivedAt.Int64
	}
	m.ArchivedReason = archivedReason.String
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
