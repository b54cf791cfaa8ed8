package retrieval

import "strings"

// TaskType is the detected working mode for a retrieval request, driving
// the per-tier weighting used to blend episodic/semantic/skills/
// anti-pattern results into one ranked list.
type TaskType string

const (
	TaskExploration   TaskType = "exploration"
	TaskImplementation TaskType = "implementation"
	TaskDebugging     TaskType = "debugging"
	TaskReview        TaskType = "review"
	TaskRefactoring   TaskType = "refactoring"
)

// Context carries the caller-supplied signals used to detect TaskType and
// to score item relevance.
type Context struct {
	Goal       string
	ActionType string
	Phase      string
}

// tierWeights holds the contribution each memory tier makes to a blended
// score for one task type.
type tierWeights struct {
	Episodic     float64
	Semantic     float64
	Skills       float64
	AntiPattern  float64
}

var weightsByTaskType = map[TaskType]tierWeights{
	TaskExploration:    {Episodic: 0.6, Semantic: 0.3, Skills: 0.1, AntiPattern: 0.0},
	TaskImplementation: {Episodic: 0.15, Semantic: 0.5, Skills: 0.35, AntiPattern: 0.0},
	TaskDebugging:      {Episodic: 0.4, Semantic: 0.2, Skills: 0.0, AntiPattern: 0.4},
	TaskReview:         {Episodic: 0.3, Semantic: 0.5, Skills: 0.0, AntiPattern: 0.2},
	TaskRefactoring:    {Episodic: 0.25, Semantic: 0.45, Skills: 0.3, AntiPattern: 0.0},
}

// taskSignals holds the per-field keyword votes for one task type. Goal
// keyword hits count 2, action hits count 3, and phase hits count 4 — a
// match on "what stage are we in" is the strongest signal, ahead of "what
// verb is being invoked", ahead of free-text wording in the goal.
type taskSignals struct {
	keywords []string
	actions  []string
	phases   []string
}

var signalsByTaskType = map[TaskType]taskSignals{
	TaskExploration: {
		keywords: []string{"explore", "understand", "research", "investigate", "analyze", "discover", "find", "what is", "how does", "architecture", "structure", "overview"},
		actions:  []string{"read_file", "search", "list_files"},
		phases:   []string{"planning", "discovery", "research"},
	},
	TaskImplementation: {
		keywords: []string{"implement", "create", "build", "add", "write", "develop", "make", "construct", "new feature"},
		actions:  []string{"write_file", "create_file", "edit_file"},
		phases:   []string{"development", "implementation", "coding"},
	},
	TaskDebugging: {
		keywords: []string{"fix", "debug", "error", "bug", "issue", "broken", "failing", "crash", "exception", "investigate error"},
		actions:  []string{"run_test", "check_logs", "trace"},
		phases:   []string{"debugging", "troubleshooting", "fixing"},
	},
	TaskReview: {
		keywords: []string{"review", "check", "validate", "verify", "audit", "inspect", "quality", "standards", "lint"},
		actions:  []string{"diff", "review_pr", "check_style"},
		phases:   []string{"review", "qa", "validation"},
	},
	TaskRefactoring: {
		keywords: []string{"refactor", "restructure", "reorganize", "clean up", "improve structure", "extract", "rename", "move"},
		actions:  []string{"rename", "move_file", "extract_function"},
		phases:   []string{"refactoring", "cleanup", "optimization"},
	},
}

// DetectTaskType scores ctx.Goal/ActionType/Phase against the keyword,
// action, and phase signal tables (weights 2/3/4 respectively) and
// returns the highest-scoring type, defaulting to TaskImplementation when
// every type scores zero.
func DetectTaskType(ctx Context) TaskType {
	goal := normalizeForMatch(ctx.Goal)
	action := normalizeForMatch(ctx.ActionType)
	phase := normalizeForMatch(ctx.Phase)

	best := TaskImplementation
	bestScore := 0
	// Iterate in a fixed order so ties resolve deterministically.
	for _, tt := range []TaskType{TaskExploration, TaskImplementation, TaskDebugging, TaskReview, TaskRefactoring} {
		sig := signalsByTaskType[tt]
		score := 0
		for _, kw := range sig.keywords {
			if strings.Contains(goal, kw) {
				score += 2
			}
		}
		for _, a := range sig.actions {
			if strings.Contains(action, a) {
				score += 3
			}
		}
		for _, p := range sig.phases {
			if strings.Contains(phase, p) {
				score += 4
			}
		}
		if score > bestScore {
			bestScore = score
			best = tt
		}
	}
	return best
}

func weightsFor(tt TaskType) tierWeights {
	if w, ok := weightsByTaskType[tt]; ok {
		return w
	}
	return weightsByTaskType[TaskImplementation]
}
