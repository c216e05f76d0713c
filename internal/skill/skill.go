// Package skill manages versioned procedure records. Skills are created and
// updated only after the permission gate has cleared the request; this
// package additionally refuses any step whose action is outside the gate's
// vocabulary, so a skill can never encode a forbidden operation.
package skill

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/steward-ai/steward/internal/gate"
	"github.com/steward-ai/steward/internal/store"
)

// Patch holds the updatable fields of a skill. Nil fields are left alone.
type Patch struct {
	Name        *string
	Description *string
	WhenToUse   *string
	Steps       *[]store.SkillStep
	Tags        *[]string
	IsEnabled   *bool
}

// Store manages skill records.
type Store struct {
	db *store.DB
}

// NewStore returns a Store over the given database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new skill at version 1. Every step action must parse
// against the closed action vocabulary.
func (s *Store) Create(name, description, whenToUse string, steps []store.SkillStep, tags []string) (*store.Skill, error) {
	if name == "" {
		return nil, fmt.Errorf("create skill: name required")
	}
	if err := validateSteps(steps); err != nil {
		return nil, fmt.Errorf("create skill %q: %w", name, err)
	}

	sk := &store.Skill{
		Name:        name,
		Description: description,
		WhenToUse:   whenToUse,
		Steps:       steps,
		Tags:        tags,
	}
	if err := s.db.CreateSkill(sk); err != nil {
		return nil, err
	}
	log.Printf("skill: created id=%s name=%q v1", sk.ID, name)
	return sk, nil
}

// Get returns a skill by id.
func (s *Store) Get(id string) (*store.Skill, error) {
	return s.db.GetSkill(id)
}

// List returns skills newest first.
func (s *Store) List(enabledOnly bool) ([]store.Skill, error) {
	return s.db.ListSkills(enabledOnly)
}

// Update applies a patch and bumps the version by exactly one. Any content
// change counts; previous content is not retained, only the number advances.
// Re-enabling a disabled skill goes through here too.
func (s *Store) Update(id string, p Patch) (*store.Skill, error) {
	sk, err := s.db.GetSkill(id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		sk.Name = *p.Name
	}
	if p.Description != nil {
		sk.Description = *p.Description
	}
	if p.WhenToUse != nil {
		sk.WhenToUse = *p.WhenToUse
	}
	if p.Steps != nil {
		if err := validateSteps(*p.Steps); err != nil {
			return nil, fmt.Errorf("update skill %s: %w", id, err)
		}
		sk.Steps = *p.Steps
	}
	if p.Tags != nil {
		sk.Tags = *p.Tags
	}
	if p.IsEnabled != nil {
		sk.IsEnabled = *p.IsEnabled
	}

	sk.Version++
	if err := s.db.UpdateSkill(sk); err != nil {
		return nil, err
	}
	log.Printf("skill: updated id=%s v%d", id, sk.Version)
	return sk, nil
}

// Disable soft-deletes a skill. History survives; Update with IsEnabled can
// bring it back.
func (s *Store) Disable(id string) (*store.Skill, error) {
	off := false
	return s.Update(id, Patch{IsEnabled: &off})
}

// Search does case-insensitive keyword matching over name, description and
// tags of enabled skills. Results come back in relevance order — name hits
// weigh most, then description, then tags — with ties broken by most recent
// creation (ids are ULIDs, so id order is creation order). Deterministic for
// a given store state.
func (s *Store) Search(query string) ([]store.Skill, error) {
	skills, err := s.db.ListSkills(true)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	type scored struct {
		skill store.Skill
		score int
	}
	var hits []scored
	for _, sk := range skills {
		score := 0
		if strings.Contains(strings.ToLower(sk.Name), q) {
			score += 3
		}
		if strings.Contains(strings.ToLower(sk.Description), q) {
			score += 2
		}
		for _, tag := range sk.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				score++
				break
			}
		}
		if score > 0 {
			hits = append(hits, scored{skill: sk, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].skill.ID > hits[j].skill.ID
	})

	out := make([]store.Skill, len(hits))
	for i, h := range hits {
		out[i] = h.skill
	}
	return out, nil
}

func validateSteps(steps []store.SkillStep) error {
	for _, st := range steps {
		if _, err := gate.ParseAction(st.Action); err != nil {
			return fmt.Errorf("step %d: %w", st.Order, err)
		}
	}
	return nil
}
