// Package gate is the single chokepoint deciding whether an action may run.
// Every mutating code path calls Evaluate before acting; anything not on the
// allowlist is rejected, including actions nobody has ever heard of.
package gate

import (
	"fmt"
	"log"
	"strings"
)

// Action is one of the fixed action vocabulary. Values outside the vocabulary
// never become an Action: ParseAction rejects them at the boundary.
type Action string

const (
	ReadMemory     Action = "read_memory"
	WriteMemory    Action = "write_memory"
	SearchMemory   Action = "search_memory"
	CreateSkill    Action = "create_skill"
	UpdateSkill    Action = "update_skill"
	SearchSkills   Action = "search_skills"
	CreateNote     Action = "create_note"
	ReadNotes      Action = "read_notes"
	UpdateNote     Action = "update_note"
	DeleteNote     Action = "delete_note"
	CreateTask     Action = "create_task"
	ReadTasks      Action = "read_tasks"
	UpdateTask     Action = "update_task"
	CompleteTask   Action = "complete_task"
	SearchDatabase Action = "search_database"
	QueryDatabase  Action = "query_database"
)

// Level is the caller's permission ceiling, supplied per request and never
// persisted.
type Level string

const (
	ReadOnly        Level = "READ_ONLY"
	DraftOnly       Level = "DRAFT_ONLY"
	ExecuteApproved Level = "EXECUTE_APPROVED"
)

// Decision is the outcome of evaluating an action against a permission level.
type Decision string

const (
	Rejected         Decision = "REJECTED"
	ExecuteDirect    Decision = "EXECUTE_DIRECT"
	RequiresApproval Decision = "REQUIRES_APPROVAL"
)

// ErrRejected marks a denial. Not retryable.
var ErrRejected = fmt.Errorf("action rejected")

// allowedActions is the full vocabulary. Extend only by adding here.
var allowedActions = map[Action]bool{
	ReadMemory: true, WriteMemory: true, SearchMemory: true,
	CreateSkill: true, UpdateSkill: true, SearchSkills: true,
	CreateNote: true, ReadNotes: true, UpdateNote: true, DeleteNote: true,
	CreateTask: true, ReadTasks: true, UpdateTask: true, CompleteTask: true,
	SearchDatabase: true, QueryDatabase: true,
}

// blockedActions names operations that must never run: OS, network, deploy,
// and anything that schedules work. Absence from the allowlist already
// rejects these; the explicit list exists so denials can say "blocked"
// instead of "unknown".
var blockedActions = map[string]bool{
	"execute_command": true, "run_shell": true, "system_call": true,
	"network_request": true, "http_request": true, "api_call_external": true,
	"deploy": true, "install_package": true, "modify_files": true,
	"read_credentials": true, "write_credentials": true,
	"spawn_process": true, "create_thread": true,
	"schedule_task": true, "cron_job": true, "background_worker": true,
}

// defaultGate backs the package-level parse helpers; New returns the same
// vocabulary.
var defaultGate = &Gate{allowed: allowedActions, blocked: blockedActions}

// ParseAction validates a raw action string against the closed vocabulary.
func ParseAction(s string) (Action, error) {
	return defaultGate.ParseAction(s)
}

// ParseLevel validates a raw permission level. Malformed levels are a
// rejection, never a default upward.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(s)) {
	case ReadOnly:
		return ReadOnly, nil
	case DraftOnly:
		return DraftOnly, nil
	case ExecuteApproved:
		return ExecuteApproved, nil
	}
	return "", fmt.Errorf("%w: unknown permission level %q", ErrRejected, s)
}

// IsReadOnly reports whether the action belongs to the read-only families
// (read_*, search_*, query_*).
func (a Action) IsReadOnly() bool {
	s := string(a)
	return strings.HasPrefix(s, "read_") ||
		strings.HasPrefix(s, "search_") ||
		strings.HasPrefix(s, "query_")
}

// Gate evaluates actions against the static allow/block lists. The lists are
// fixed at construction and never mutated at runtime.
type Gate struct {
	allowed map[Action]bool
	blocked map[string]bool
}

// New returns a Gate over the default action vocabulary.
func New() *Gate {
	return defaultGate
}

// ParseAction validates a raw action string against this gate's vocabulary.
// The blocklist only changes the denial's wording: absence from the
// allowlist already rejects.
func (g *Gate) ParseAction(s string) (Action, error) {
	a := Action(s)
	if !g.allowed[a] {
		if g.blocked[s] {
			return "", fmt.Errorf("%w: %q is blocked", ErrRejected, s)
		}
		return "", fmt.Errorf("%w: unknown action %q", ErrRejected, s)
	}
	return a, nil
}

// Evaluate decides what may happen to an action under a permission level.
// Deterministic, no side effects beyond a log line.
//
//   - Action not allowlisted: REJECTED, regardless of level.
//   - READ_ONLY: read-family actions execute directly, everything else is
//     rejected.
//   - DRAFT_ONLY: never EXECUTE_DIRECT. Every allowed action requires
//     approval, and even a recorded approval only yields a plan artifact —
//     the caller contract never executes under DRAFT_ONLY.
//   - EXECUTE_APPROVED: read-family actions execute directly, all other
//     allowed actions require approval.
func (g *Gate) Evaluate(action Action, level Level) Decision {
	if !g.allowed[action] {
		log.Printf("gate: rejected action=%q level=%s (not allowlisted)", action, level)
		return Rejected
	}

	var d Decision
	switch level {
	case ReadOnly:
		if action.IsReadOnly() {
			d = ExecuteDirect
		} else {
			d = Rejected
		}
	case DraftOnly:
		d = RequiresApproval
	case ExecuteApproved:
		if action.IsReadOnly() {
			d = ExecuteDirect
		} else {
			d = RequiresApproval
		}
	default:
		// Fail-safe: a level we do not recognize authorizes nothing.
		d = Rejected
	}

	log.Printf("gate: action=%s level=%s decision=%s", action, level, d)
	return d
}

// EvaluateRaw parses and evaluates in one step, for callers holding
// untrusted strings. Any parse failure is a rejection.
func (g *Gate) EvaluateRaw(action, level string) Decision {
	a, err := g.ParseAction(action)
	if err != nil {
		log.Printf("gate: rejected raw action=%q: %v", action, err)
		return Rejected
	}
	l, err := ParseLevel(level)
	if err != nil {
		log.Printf("gate: rejected raw level=%q: %v", level, err)
		return Rejected
	}
	return g.Evaluate(a, l)
}
