package adjuster

import (
	"testing"

	"github.com/loki-swarm/core/internal/composer"
)

func baseAgents() []composer.Agent {
	return []composer.Agent{
		{Type: "planner", Role: "Planner", Priority: 1},
		{Type: "backend-engineer", Role: "Backend engineer", Priority: 1},
		{Type: "code-reviewer", Role: "Code reviewer", Priority: 1},
	}
}

func TestAdjustAddsGateSpecialistOnRepeatedFailure(t *testing.T) {
	a := Adjust(baseAgents(), Signals{
		GatePassRate:   0.3,
		TestCoverage:   1,
		ReviewPassRate: 1,
		IterationCount: 4,
		FailedGates:    []string{"security"},
	})
	if a.Action != ActionAdd {
		t.Fatalf("expected add action, got %q", a.Action)
	}
	found := false
	for _, ag := range a.AgentsToAdd {
		if ag.Type == "ops-security" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ops-security added for failed security gate, got %+v", a.AgentsToAdd)
	}
}

func TestAdjustIgnoresUnknownGateNames(t *testing.T) {
	a := Adjust(baseAgents(), Signals{
		GatePassRate:   0.3,
		TestCoverage:   1,
		ReviewPassRate: 1,
		IterationCount: 4,
		FailedGates:    []string{"unobtainium-gate"},
	})
	if a.Action != ActionNone {
		t.Fatalf("expected no action for unknown gate, got %q with %+v", a.Action, a.AgentsToAdd)
	}
}

func TestAdjustDoesNotFireGateRuleBelowIterationThreshold(t *testing.T) {
	a := Adjust(baseAgents(), Signals{
		GatePassRate:   0.3,
		TestCoverage:   1,
		ReviewPassRate: 1,
		IterationCount: 2,
		FailedGates:    []string{"security"},
	})
	if a.Action != ActionNone {
		t.Fatalf("expected no action below iteration threshold, got %q", a.Action)
	}
}

func TestAdjustAddsQAOnLowCoverage(t *testing.T) {
	a := Adjust(baseAgents(), Signals{TestCoverage: 0.4, GatePassRate: 1, ReviewPassRate: 1})
	if a.Action != ActionAdd {
		t.Fatalf("expected add, got %q", a.Action)
	}
	if len(a.AgentsToAdd) != 1 || a.AgentsToAdd[0].Type != "eng-qa" {
		t.Fatalf("expected eng-qa added, got %+v", a.AgentsToAdd)
	}
}

func TestAdjustSkipsQAIfAlreadyPresent(t *testing.T) {
	agents := append(baseAgents(), composer.Agent{Type: "eng-qa", Role: "Test engineer", Priority: 2})
	a := Adjust(agents, Signals{TestCoverage: 0.4, GatePassRate: 1, ReviewPassRate: 1})
	if a.Action != ActionNone {
		t.Fatalf("expected no action when eng-qa already present, got %q with %+v", a.Action, a.AgentsToAdd)
	}
}

func TestAdjustAddsSecurityReviewerOnLowReviewPassRate(t *testing.T) {
	a := Adjust(baseAgents(), Signals{ReviewPassRate: 0.2, GatePassRate: 1, TestCoverage: 1})
	if a.Action != ActionAdd {
		t.Fatalf("expected add, got %q", a.Action)
	}
	if len(a.AgentsToAdd) != 1 || a.AgentsToAdd[0].Type != "review-security" {
		t.Fatalf("expected review-security added, got %+v", a.AgentsToAdd)
	}
}

func TestAdjustPrunesLowestPriorityAgentWhenAllSignalsHealthy(t *testing.T) {
	agents := []composer.Agent{
		{Type: "planner", Priority: 1},
		{Type: "backend-engineer", Priority: 1},
		{Type: "code-reviewer", Priority: 1},
		{Type: "frontend-engineer", Priority: 2},
		{Type: "analytics-engineer", Priority: 3},
	}
	a := Adjust(agents, Signals{GatePassRate: 0.95, TestCoverage: 0.9, ReviewPassRate: 0.85})
	if a.Action != ActionRemove {
		t.Fatalf("expected remove action, got %q", a.Action)
	}
	if len(a.AgentsToRemove) != 1 || a.AgentsToRemove[0] != "analytics-engineer" {
		t.Fatalf("expected analytics-engineer pruned, got %+v", a.AgentsToRemove)
	}
}

func TestAdjustDoesNotPruneWithoutPriorityThreeAgent(t *testing.T) {
	agents := []composer.Agent{
		{Type: "planner", Priority: 1},
		{Type: "backend-engineer", Priority: 1},
		{Type: "code-reviewer", Priority: 1},
		{Type: "frontend-engineer", Priority: 2},
		{Type: "database-engineer", Priority: 2},
	}
	a := Adjust(agents, Signals{GatePassRate: 0.95, TestCoverage: 0.9, ReviewPassRate: 0.85})
	if a.Action != ActionNone {
		t.Fatalf("expected no action without a priority>=3 agent, got %q with %+v", a.Action, a.AgentsToRemove)
	}
}

func TestAdjustNoneWhenTeamTooSmallToPrune(t *testing.T) {
	agents := []composer.Agent{
		{Type: "planner", Priority: 1},
		{Type: "analytics-engineer", Priority: 3},
	}
	a := Adjust(agents, Signals{GatePassRate: 0.95, TestCoverage: 0.9, ReviewPassRate: 0.85})
	if a.Action != ActionNone {
		t.Fatalf("expected no action with only 2 agents, got %q", a.Action)
	}
}
