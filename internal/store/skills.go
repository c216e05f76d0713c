package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SkillStep is one ordered step of a skill's procedure. Action must be in the
// gate's allowlist; the skill package validates that before anything reaches
// the store.
type SkillStep struct {
	Order       int    `json:"order"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Skill is a versioned procedure record. Version only ever increases;
// disabling is a soft delete.
type Skill struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	WhenToUse   string      `json:"when_to_use"`
	Steps       []SkillStep `json:"steps"`
	Tags        []string    `json:"tags"`
	Version     int         `json:"version"`
	IsEnabled   bool        `json:"is_enabled"`
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
}

const skillCols = `id, name, description, when_to_use, steps, tags, version, is_enabled, created_at, updated_at`

// CreateSkill inserts a new skill at version 1.
func (db *DB) CreateSkill(s *Skill) error {
	now := time.Now().UnixMilli()
	if s.ID == "" {
		s.ID = db.NewID()
	}
	s.Version = 1
	s.IsEnabled = true
	s.CreatedAt = now
	s.UpdatedAt = now

	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO skills (id, name, description, when_to_use, steps, tags, version, is_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
	`, s.ID, s.Name, s.Description, s.WhenToUse, string(steps), string(tags), now, now)
	if err != nil {
		return wrapBusy(fmt.Errorf("create skill: %w", err))
	}
	return nil
}

// GetSkill returns a skill by id, or ErrNotFound.
func (db *DB) GetSkill(id string) (*Skill, error) {
	row := db.QueryRow(`SELECT `+skillCols+` FROM skills WHERE id = ?`, id)
	s, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("skill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return s, nil
}

// UpdateSkill writes a skill's content fields, version, and enabled flag.
func (db *DB) UpdateSkill(s *Skill) error {
	now := time.Now().UnixMilli()
	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	enabled := 0
	if s.IsEnabled {
		enabled = 1
	}
	res, err := db.Exec(`
		UPDATE skills SET name = ?, description = ?, when_to_use = ?, steps = ?, tags = ?,
			version = ?, is_enabled = ?, updated_at = ?
		WHERE id = ?
	`, s.Name, s.Description, s.WhenToUse, string(steps), string(tags),
		s.Version, enabled, now, s.ID)
	if err != nil {
		return wrapBusy(fmt.Errorf("update skill: %w", err))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("skill %s: %w", s.ID, ErrNotFound)
	}
	s.UpdatedAt = now
	return nil
}

// ListSkills returns skills newest first, optionally only enabled ones.
func (db *DB) ListSkills(enabledOnly bool) ([]Skill, error) {
	q := `SELECT ` + skillCols + ` FROM skills ORDER BY id DESC`
	if enabledOnly {
		q = `SELECT ` + skillCols + ` FROM skills WHERE is_enabled = 1 ORDER BY id DESC`
	}
	rows, err := db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()
	return scanSkills(rows)
}

func scanSkill(r rowScanner) (*Skill, error) {
	var s Skill
	var steps, tags string
	var enabled int
	err := r.Scan(&s.ID, &s.Name, &s.Description, &s.WhenToUse, &steps, &tags,
		&s.Version, &enabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &s.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	s.IsEnabled = enabled != 0
	return &s, nil
}

func scanSkills(rows *sql.Rows) ([]Skill, error) {
	var out []Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
