// Package memory owns the HOT/COLD/ARCHIVE record lifecycle. All transitions
// happen synchronously inside an explicit call — there is no sweeper, timer,
// or scheduled task anywhere, and the package deliberately exposes no way to
// add one. A HOT record past its TTL is archived inline by the first read
// that touches it.
package memory

import (
	"fmt"
	"log"
	"time"

	"github.com/steward-ai/steward/internal/redact"
	"github.com/steward-ai/steward/internal/store"
)

// DefaultTTL is how long a HOT record lives without being read.
const DefaultTTL = 7 * 24 * time.Hour

// ArchivedExpired is the reason written when inline expiry archives a record.
const ArchivedExpired = "expired"

// Manager mediates every memory mutation. Records are created by ingestion
// and only ever change through Touch/Promote/Archive; nothing deletes them.
type Manager struct {
	db    *store.DB
	ttl   time.Duration
	locks *keyedMutex
}

// NewManager returns a Manager with the given TTL for HOT records. A zero
// ttl means DefaultTTL.
func NewManager(db *store.DB, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{db: db, ttl: ttl, locks: newKeyedMutex()}
}

// Ingest creates a HOT record expiring one TTL from now. The value is passed
// through the PII redactor before it is written; what the user saw live is
// not what gets persisted if it contained sensitive data.
func (m *Manager) Ingest(userID, key, value string, tags []string) (*store.Memory, error) {
	if key == "" {
		return nil, fmt.Errorf("ingest: key required")
	}
	expires := time.Now().Add(m.ttl).UnixMilli()
	rec := &store.Memory{
		UserID:    userID,
		Tier:      store.TierHot,
		Key:       key,
		Value:     redact.Redact(value),
		Tags:      tags,
		ExpiresAt: &expires,
	}
	if err := m.db.CreateMemory(rec); err != nil {
		return nil, err
	}
	log.Printf("memory: ingested id=%s key=%q tier=HOT", rec.ID, key)
	return rec, nil
}

// Get reads one record. For a live HOT record this is a touch: the TTL
// renews and renewed_count increments. For a HOT record past its TTL the
// same call archives it first and returns the archived record — expiry is
// observed at latest by the next access.
func (m *Manager) Get(id string) (*store.Memory, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if rec.Tier != store.TierHot {
		return rec, nil
	}

	now := time.Now()
	if rec.ExpiresAt != nil && now.UnixMilli() > *rec.ExpiresAt {
		if err := m.archiveLocked(rec, ArchivedExpired); err != nil {
			return nil, err
		}
		return rec, nil
	}

	expires := now.Add(m.ttl).UnixMilli()
	rec.ExpiresAt = &expires
	rec.RenewedCount++
	if err := m.db.UpdateMemory(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Promote moves a HOT record to COLD, clearing its TTL. The decision is the
// caller's (detected stability or repetition) — nothing promotes
// automatically.
func (m *Manager) Promote(id string) (*store.Memory, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if rec.Tier != store.TierHot {
		return nil, fmt.Errorf("promote %s: tier is %s, want HOT", id, rec.Tier)
	}
	// Promotion is a reference like any other: an expired record archives
	// inline instead of sneaking into permanence.
	if rec.ExpiresAt != nil && time.Now().UnixMilli() > *rec.ExpiresAt {
		if err := m.archiveLocked(rec, ArchivedExpired); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("promote %s: record expired", id)
	}
	rec.Tier = store.TierCold
	rec.ExpiresAt = nil
	if err := m.db.UpdateMemory(rec); err != nil {
		return nil, err
	}
	log.Printf("memory: promoted id=%s to COLD", id)
	return rec, nil
}

// Archive moves a HOT or COLD record into the terminal ARCHIVE tier with the
// given reason. Archived records are read-only history and never removed.
func (m *Manager) Archive(id, reason string) (*store.Memory, error) {
	if reason == "" {
		return nil, fmt.Errorf("archive %s: reason required", id)
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if rec.Tier == store.TierArchive {
		return nil, fmt.Errorf("archive %s: already archived", id)
	}
	if err := m.archiveLocked(rec, reason); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns a user's records in one tier. HOT listings run inline expiry
// first, so a record past its TTL is never in the result.
func (m *Manager) List(userID, tier string) ([]store.Memory, error) {
	if tier == store.TierHot {
		if err := m.expireDue(userID); err != nil {
			return nil, err
		}
	}
	return m.db.ListMemories(userID, tier)
}

// Search matches key, value and tags within one tier, with the same inline
// expiry guarantee as List.
func (m *Manager) Search(userID, tier, query string) ([]store.Memory, error) {
	if tier == store.TierHot {
		if err := m.expireDue(userID); err != nil {
			return nil, err
		}
	}
	return m.db.SearchMemories(userID, tier, query)
}

// expireDue archives every HOT record of the user whose TTL has lapsed,
// synchronously, before the caller's read proceeds.
func (m *Manager) expireDue(userID string) error {
	due, err := m.db.ListExpiredHot(userID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	for i := range due {
		rec := &due[i]
		unlock := m.locks.Lock(rec.ID)
		// Re-read under the lock: a concurrent touch may have renewed it.
		current, err := m.db.GetMemory(rec.ID)
		if err != nil {
			unlock()
			return err
		}
		if current.Tier == store.TierHot && current.ExpiresAt != nil &&
			time.Now().UnixMilli() > *current.ExpiresAt {
			if err := m.archiveLocked(current, ArchivedExpired); err != nil {
				unlock()
				return err
			}
		}
		unlock()
	}
	return nil
}

// archiveLocked writes the ARCHIVE transition. Caller holds the record lock.
func (m *Manager) archiveLocked(rec *store.Memory, reason string) error {
	now := time.Now().UnixMilli()
	rec.Tier = store.TierArchive
	rec.ExpiresAt = nil
	rec.ArchivedReason = reason
	rec.ArchivedAt = &now
	if err := m.db.UpdateMemory(rec); err != nil {
		return fmt.Errorf("archive %s: %w", rec.ID, err)
	}
	log.Printf("memory: archived id=%s reason=%q", rec.ID, reason)
	return nil
}
