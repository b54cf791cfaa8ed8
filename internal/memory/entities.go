// Package memory implements the three-tier persistent memory store (C1):
// episodic, semantic and procedural memory, backed by atomic JSON files
// under a namespace-scoped root directory.
package memory

import "time"

// Outcome is the terminal result recorded for an Episode.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Episode is one concrete, immutable (save for importance/access bookkeeping)
// record of an agent interaction — episodic memory.
type Episode struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"` // ISO-8601 on the wire via time.Time's default JSON encoding
	Actor        string    `json:"actor"`
	Phase        string    `json:"phase"`
	Goal         string    `json:"goal"`
	ActionLog    []string  `json:"action_log"`
	Errors       []string  `json:"errors"`
	Outcome      Outcome   `json:"outcome"`
	TokenCount   int       `json:"token_count"`
	FilesRead    []string  `json:"files_read"`
	FilesWritten []string  `json:"files_modified"`

	Importance   float64   `json:"importance"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`

	// TaskType, when set, is the detected/declared task type this episode
	// was produced under (exploration, implementation, ...) and is used by
	// the importance algorithm's phase/category match bonus.
	TaskType string `json:"task_type,omitempty"`
	// Confidence, when present (e.g. carried over from a pattern-derived
	// episode), blends into the importance base per §4.1.
	Confidence *float64 `json:"confidence,omitempty"`
	// ResolvedErrorCount counts errors in Errors that were subsequently
	// fixed within the same episode, feeding the "+up to 0.15" bonus.
	ResolvedErrorCount int `json:"resolved_error_count,omitempty"`
}

// Pattern is a generalized, mutable (via upsert) semantic-memory record.
type Pattern struct {
	ID                string    `json:"id"`
	Text              string    `json:"pattern_text"`
	Category          string    `json:"category"`
	CorrectApproach   string    `json:"correct_approach"`
	IncorrectApproach string    `json:"incorrect_approach"`
	Confidence        float64   `json:"confidence"`
	SourceEpisodeIDs  []string  `json:"source_episode_ids"`
	UsageCount        int       `json:"usage_count"`
	LastUsed          time.Time `json:"last_used"`
}

// AntiPattern records a known failure mode to avoid repeating.
type AntiPattern struct {
	ID         string `json:"id"`
	WhatFails  string `json:"what_fails"`
	Why        string `json:"why"`
	Prevention string `json:"prevention"`
}

// SkillErrorFix pairs a known error with its fix, part of a Skill's
// accumulated troubleshooting knowledge.
type SkillErrorFix struct {
	Error string `json:"error"`
	Fix   string `json:"fix"`
}

// Skill is a reusable, ordered procedure — procedural memory.
type Skill struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Prerequisites  []string        `json:"prerequisites"`
	Steps          []string        `json:"steps"`
	KnownErrors    []SkillErrorFix `json:"known_errors"`
	ExitCriteria   []string        `json:"exit_criteria"`
}

// Tier identifies one of the three memory tiers plus anti-patterns, which
// retrieval weights independently even though they persist alongside
// patterns on disk.
type Tier string

const (
	TierEpisodic    Tier = "episodic"
	TierSemantic    Tier = "semantic"
	TierSkills      Tier = "skills"
	TierAntiPattern Tier = "anti_patterns"
)
