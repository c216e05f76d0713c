package llm

import "fmt"

// ExtractionPrompt asks the model to classify a conversation chunk into
// memory and skill candidates. The response is parsed defensively — whatever
// comes back is treated as untrusted input.
func ExtractionPrompt(chunk string) string {
	return fmt.Sprintf(`You are the memory classifier of a personal assistant. Analyze this conversation and extract durable facts and reusable procedures.

CONVERSATION:
%s

Extract:
- memories: facts worth keeping. Mark stable=true only for facts unlikely to change (permanent preferences, standing schedules); everything else is short-lived and will expire if never referenced again.
- skills: multi-step procedures the user described or asked to remember. Each step has an order, an action name, and a description.

Rules:
- Only extract genuinely useful, persistent knowledge
- Skip trivia and session-specific detail
- Keys are short snake_case identifiers
- Return ONLY a JSON object, no other text

Return:
{
  "memories": [
    {"key": "shift", "value": "09:00-18:00", "tags": ["work"], "stable": false}
  ],
  "skills": [
    {"name": "daily_summary", "description": "...", "when_to_use": "...",
     "steps": [{"order": 1, "action": "read_tasks", "description": "..."}],
     "tags": ["summary"]}
  ]
}

If nothing worth extracting, return: {"memories": [], "skills": []}`, chunk)
}
