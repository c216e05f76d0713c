// Package engine turns free-text conversation into memory and skill records.
// The LLM's output is untrusted input: it gets the same redaction and
// action validation as any external caller before anything is persisted.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/steward-ai/steward/internal/llm"
	"github.com/steward-ai/steward/internal/memory"
	"github.com/steward-ai/steward/internal/skill"
	"github.com/steward-ai/steward/internal/store"
)

// Engine orchestrates extraction. It owns no timers and spawns no goroutines;
// everything happens inside the caller's request.
type Engine struct {
	Memories *memory.Manager
	Skills   *skill.Store
	LLM      llm.Client
}

// New creates a new Engine.
func New(mem *memory.Manager, skills *skill.Store, client llm.Client) *Engine {
	return &Engine{Memories: mem, Skills: skills, LLM: client}
}

// Result summarizes what one conversation chunk produced.
type Result struct {
	HotCreated    []store.Memory `json:"hot_created"`
	ColdCreated   []store.Memory `json:"cold_created"`
	SkillsCreated []string       `json:"skills_created"`
	Skipped       int            `json:"skipped"`
	Summary       string         `json:"summary"`
}

// ProcessConversation asks the LLM to classify a conversation chunk and
// persists what survives validation. Candidates with invalid step actions
// are skipped, not fixed up — a model proposing a forbidden action gets
// nothing. Stable facts are ingested HOT and immediately promoted to COLD
// through the same public transition every other caller uses.
func (e *Engine) ProcessConversation(ctx context.Context, userID, chunk string) (*Result, error) {
	if chunk == "" {
		return nil, fmt.Errorf("process conversation: empty chunk")
	}

	resp, err := e.LLM.Complete(ctx, llm.ExtractionPrompt(chunk))
	if err != nil {
		return nil, fmt.Errorf("extraction llm: %w", err)
	}

	ext, err := parseExtraction(resp.Content)
	if err != nil {
		log.Printf("engine: unparseable extraction from %s: %v", resp.Provider, err)
		return &Result{Summary: "nothing extracted"}, nil
	}

	res := &Result{}
	for _, c := range ext.Memories {
		if c.Key == "" {
			res.Skipped++
			continue
		}
		rec, err := e.Memories.Ingest(userID, c.Key, c.Value, c.Tags)
		if err != nil {
			return res, fmt.Errorf("ingest %q: %w", c.Key, err)
		}
		if c.Stable {
			rec, err = e.Memories.Promote(rec.ID)
			if err != nil {
				return res, fmt.Errorf("promote %q: %w", c.Key, err)
			}
			res.ColdCreated = append(res.ColdCreated, *rec)
		} else {
			res.HotCreated = append(res.HotCreated, *rec)
		}
	}

	for _, c := range ext.Skills {
		sk, err := e.Skills.Create(c.Name, c.Description, c.WhenToUse, c.Steps, c.Tags)
		if err != nil {
			// Bad step action or missing name: drop the candidate.
			log.Printf("engine: skipped skill candidate %q: %v", c.Name, err)
			res.Skipped++
			continue
		}
		res.SkillsCreated = append(res.SkillsCreated, sk.ID)
	}

	res.Summary = fmt.Sprintf("extracted %d hot, %d cold, %d skills (%d skipped)",
		len(res.HotCreated), len(res.ColdCreated), len(res.SkillsCreated), res.Skipped)
	return res, nil
}
