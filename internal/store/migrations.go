package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: tiered records with inline-expiry metadata",
		SQL: `
CREATE TABLE memories (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    tier            TEXT NOT NULL CHECK (tier IN ('HOT', 'COLD', 'ARCHIVE')),
    key             TEXT NOT NULL,
    value           TEXT NOT NULL,
    tags            TEXT NOT NULL DEFAULT '[]',

    -- HOT only
    expires_at      INTEGER,
    renewed_count   INTEGER NOT NULL DEFAULT 0,

    -- ARCHIVE only
    archived_reason TEXT,
    archived_at     INTEGER,

    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,

    CHECK (tier != 'HOT' OR expires_at IS NOT NULL),
    CHECK (tier != 'ARCHIVE' OR archived_reason IS NOT NULL),
    CHECK (tier != 'COLD' OR expires_at IS NULL)
);

CREATE INDEX idx_memories_user_tier ON memories(user_id, tier);
CREATE INDEX idx_memories_expires   ON memories(expires_at);
`,
	},
	{
		Version:     2,
		Description: "skills: versioned procedures, soft disable",
		SQL: `
CREATE TABLE skills (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL,
    when_to_use TEXT NOT NULL,
    steps       TEXT NOT NULL DEFAULT '[]',
    tags        TEXT NOT NULL DEFAULT '[]',
    version     INTEGER NOT NULL DEFAULT 1 CHECK (version >= 1),
    is_enabled  INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_skills_enabled ON skills(is_enabled);
CREATE INDEX idx_skills_name    ON skills(name);
`,
	},
	{
		Version:     3,
		Description: "approvals: immutable decision ledger",
		SQL: `
CREATE TABLE approvals (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    action_type  TEXT NOT NULL,
    payload      TEXT NOT NULL,
    payload_hash TEXT NOT NULL,
    approved     INTEGER NOT NULL,
    decided_at   INTEGER NOT NULL
);

CREATE INDEX idx_approvals_user    ON approvals(user_id);
CREATE INDEX idx_approvals_decided ON approvals(decided_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
