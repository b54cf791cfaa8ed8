// Package adjuster implements C8: rule-driven mid-flight team composition
// changes, reacting to the signals a completed task cycle produces.
package adjuster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loki-swarm/core/internal/composer"
)

// Action classifies the mutation Adjust recommends.
type Action string

const (
	ActionNone    Action = "none"
	ActionAdd     Action = "add"
	ActionRemove  Action = "remove"
	ActionReplace Action = "replace" // reserved for future rules that add and remove together
)

// Signals summarizes one cycle's outcomes, the inputs to the rule chain.
type Signals struct {
	GatePassRate    float64
	TestCoverage    float64
	ReviewPassRate  float64
	IterationCount  int
	FailedGates     []string
}

// Adjustment is Adjust's recommendation for the current cycle.
type Adjustment struct {
	Action        Action           `json:"action"`
	AgentsToAdd   []composer.Agent `json:"agents_to_add,omitempty"`
	AgentsToRemove []string        `json:"agents_to_remove,omitempty"`
	Rationale     string           `json:"rationale"`
}

// gateSpecialists maps a failed gate name (case-insensitive) to the
// specialist agent type that addresses it. Unknown gate names are ignored.
var gateSpecialists = map[string]composer.Agent{
	"mock_detector":     {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"mock_detection":    {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"test_coverage":     {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"testing":           {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"unit_test":         {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"integration_test":  {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"e2e":               {Type: "eng-qa", Role: "Test engineer", Priority: 2},
	"security":          {Type: "ops-security", Role: "Security operations", Priority: 2},
	"security_scan":     {Type: "ops-security", Role: "Security operations", Priority: 2},
	"vulnerability":     {Type: "ops-security", Role: "Security operations", Priority: 2},
	"owasp":             {Type: "ops-security", Role: "Security operations", Priority: 2},
	"code_quality":      {Type: "review-code", Role: "Code reviewer", Priority: 2},
	"code_review":       {Type: "review-code", Role: "Code reviewer", Priority: 2},
	"lint":              {Type: "review-code", Role: "Code reviewer", Priority: 2},
	"static_analysis":   {Type: "review-code", Role: "Code reviewer", Priority: 2},
	"performance":       {Type: "eng-perf", Role: "Performance engineer", Priority: 2},
	"load_test":         {Type: "eng-perf", Role: "Performance engineer", Priority: 2},
	"benchmark":         {Type: "eng-perf", Role: "Performance engineer", Priority: 2},
	"deployment":        {Type: "ops-devops", Role: "DevOps engineer", Priority: 2},
	"ci_cd":             {Type: "ops-devops", Role: "DevOps engineer", Priority: 2},
	"infrastructure":    {Type: "eng-infra", Role: "Infrastructure engineer", Priority: 2},
	"database":          {Type: "eng-database", Role: "Database engineer", Priority: 2},
	"migration":         {Type: "eng-database", Role: "Database engineer", Priority: 2},
	"frontend":          {Type: "eng-frontend", Role: "Frontend engineer", Priority: 2},
	"ui":                {Type: "eng-frontend", Role: "Frontend engineer", Priority: 2},
	"accessibility":     {Type: "eng-frontend", Role: "Frontend engineer", Priority: 2},
	"api":               {Type: "eng-api", Role: "API engineer", Priority: 2},
	"documentation":     {Type: "prod-techwriter", Role: "Technical writer", Priority: 2},
}

const (
	lowGatePassRate    = 0.5
	highIterationCount = 3
	lowTestCoverage    = 0.6
	lowReviewPassRate  = 0.5
	highSignalBar      = 0.8
	minAgentsForPrune  = 4
	prunePriorityFloor = 3
)

// Adjust applies the rule chain in order. The three add rules (failed
// gates, low coverage, low review pass rate) all run and their additions
// accumulate into one ActionAdd; the final pruning rule is considered only
// when none of them added an agent.
func Adjust(agents []composer.Agent, signals Signals) Adjustment {
	present := make(map[string]bool, len(agents))
	for _, a := range agents {
		present[a.Type] = true
	}

	var toAdd []composer.Agent
	addType := func(a composer.Agent) {
		if present[a.Type] {
			return
		}
		present[a.Type] = true
		toAdd = append(toAdd, a)
	}

	var reasons []string

	if signals.GatePassRate < lowGatePassRate && signals.IterationCount > highIterationCount {
		before := len(toAdd)
		for _, gate := range sortedUnique(signals.FailedGates) {
			spec, ok := gateSpecialists[strings.ToLower(gate)]
			if !ok {
				continue
			}
			addType(spec)
		}
		if len(toAdd) > before {
			reasons = append(reasons, fmt.Sprintf("gate pass rate (%.0f%%) below 50%% after %d iterations", signals.GatePassRate*100, signals.IterationCount))
		}
	}

	if signals.TestCoverage < lowTestCoverage {
		before := len(toAdd)
		addType(composer.Agent{Type: "eng-qa", Role: "Test engineer", Priority: 2})
		if len(toAdd) > before {
			reasons = append(reasons, fmt.Sprintf("test coverage %.0f%% below %.0f%% threshold", signals.TestCoverage*100, lowTestCoverage*100))
		}
	}

	if signals.ReviewPassRate < lowReviewPassRate {
		before := len(toAdd)
		addType(composer.Agent{Type: "review-security", Role: "Security reviewer", Priority: 2})
		if len(toAdd) > before {
			reasons = append(reasons, fmt.Sprintf("review pass rate %.0f%% below %.0f%% threshold", signals.ReviewPassRate*100, lowReviewPassRate*100))
		}
	}

	if len(toAdd) > 0 {
		return Adjustment{
			Action:      ActionAdd,
			AgentsToAdd: toAdd,
			Rationale:   strings.Join(reasons, "; "),
		}
	}

	if signals.GatePassRate > highSignalBar && signals.TestCoverage > highSignalBar && signals.ReviewPassRate > highSignalBar &&
		len(agents) > minAgentsForPrune {
		if victim, ok := highestPriorityNumber(agents); ok {
			return Adjustment{
				Action:         ActionRemove,
				AgentsToRemove: []string{victim.Type},
				Rationale:      fmt.Sprintf("all signals healthy (gate=%.0f%% coverage=%.0f%% review=%.0f%%) and team oversized; pruning lowest-priority agent %q", signals.GatePassRate*100, signals.TestCoverage*100, signals.ReviewPassRate*100, victim.Type),
			}
		}
	}

	return Adjustment{Action: ActionNone, Rationale: "no rule matched current signals"}
}

func sortedUnique(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// highestPriorityNumber finds the agent with the numerically highest
// priority (the least critical) among agents with priority >= 3.
func highestPriorityNumber(agents []composer.Agent) (composer.Agent, bool) {
	var best composer.Agent
	found := false
	for _, a := range agents {
		if a.Priority < prunePriorityFloor {
			continue
		}
		if !found || a.Priority > best.Priority {
			best = a
			found = true
		}
	}
	return best, found
}
