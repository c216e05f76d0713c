package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steward-ai/steward/internal/store"
)

// extraction is the JSON structure expected from the extraction LLM.
type extraction struct {
	Memories []memoryCandidate `json:"memories"`
	Skills   []skillCandidate  `json:"skills"`
}

type memoryCandidate struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Tags   []string `json:"tags"`
	Stable bool     `json:"stable"`
}

type skillCandidate struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	WhenToUse   string            `json:"when_to_use"`
	Steps       []store.SkillStep `json:"steps"`
	Tags        []string          `json:"tags"`
}

// parseExtraction pulls the JSON object out of a model response. Models wrap
// output in markdown fences or prose often enough that we scan for the first
// balanced object rather than trusting the whole response to be JSON.
func parseExtraction(content string) (*extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	if start < 0 {
		return nil, fmt.Errorf("no json object in response")
	}
	end := strings.LastIndex(content, "}")
	if end < start {
		return nil, fmt.Errorf("unterminated json object in response")
	}

	var ext extraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &ext); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &ext, nil
}
