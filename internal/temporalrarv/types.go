// Package temporalrarv implements C10's per-task RARV cycle as a Temporal
// workflow: Reason (retrieval), Act (dispatch to a collaborator), Review
// (council vote), Verify (checklist re-grading). cmd/lokicore starts the
// worker; nothing in this module calls StartWorkflow, and the orchestrator
// package's Session runs its own RARV cycle in-process.
package temporalrarv

import "time"

// TaskRequest is submitted to start a LokiAgentWorkflow execution.
type TaskRequest struct {
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type"`
	Title       string `json:"title"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`

	AgentType     string   `json:"agent_type"`
	ReviewerTypes []string `json:"reviewer_types"`

	ProjectDir string `json:"project_dir"`
	Namespace  string `json:"namespace"`

	TokenBudget int `json:"token_budget"`
}

// ReasonResult is the output of PlanActivity: the retrieved context an
// agent gets handed before acting.
type ReasonResult struct {
	Items      []RetrievedItem `json:"items"`
	TokensUsed int             `json:"tokens_used"`
}

// RetrievedItem is a JSON-safe projection of retrieval.ScoredItem, kept
// independent of the retrieval package's exact shape so this workflow's
// history stays stable across internal refactors of that package.
type RetrievedItem struct {
	ID      string  `json:"id"`
	Tier    string  `json:"tier"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
	Tokens  int     `json:"tokens"`
}

// ActResult is the output of ExecuteActivity: one collaborator's attempt
// at the task.
type ActResult struct {
	AgentType     string   `json:"agent_type"`
	Summary       string   `json:"summary"`
	FilesModified []string `json:"files_modified"`
	Outcome       string   `json:"outcome"`
	DurationS     float64  `json:"duration_s"`
	Quality       float64  `json:"quality"`
	Errors        []string `json:"errors,omitempty"`
}

// ReviewVote is a JSON-safe projection of council.Vote.
type ReviewVote struct {
	ReviewerID string   `json:"reviewer_id"`
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Issues     []string `json:"issues,omitempty"`
}

// ReviewResult is the output of ReviewActivity: the council's decision.
type ReviewResult struct {
	Verdict         string  `json:"verdict"`
	Inconclusive    bool    `json:"inconclusive"`
	Rationale       string  `json:"rationale"`
	SycophancyScore float64 `json:"sycophancy_score"`
	SycophancyClass string  `json:"sycophancy_class"`
	FaultySeverity  float64 `json:"faulty_severity,omitempty"` // max fault severity raised, 0 if none
}

// VerifyResult is the output of ChecklistActivity.
type VerifyResult struct {
	AllVerified bool `json:"all_verified"`
	ItemCount   int  `json:"item_count"`
	FailingCount int `json:"failing_count"`
}

// OutcomeRecord is what RecordOutcomeActivity persists to memory.
type OutcomeRecord struct {
	TaskID    string    `json:"task_id"`
	AgentType string    `json:"agent_type"`
	Status    string    `json:"status"` // completed, review, failed, escalated
	Attempts  int       `json:"attempts"`
	DurationS float64   `json:"duration_s"`
	Rationale string    `json:"rationale,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WorkflowResult is returned by LokiAgentWorkflow.
type WorkflowResult struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"` // completed, review, failed, escalated
	Attempts int    `json:"attempts"`
	Rationale string `json:"rationale,omitempty"`
}
