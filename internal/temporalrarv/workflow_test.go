package temporalrarv

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func baseReq() TaskRequest {
	return TaskRequest{
		TaskID:        "task-1",
		TaskType:      "implement",
		Title:         "add widget",
		Action:        "implement",
		Description:   "build the widget",
		ReviewerTypes: []string{"reviewer-a", "reviewer-b"},
		AgentType:     "impl",
		ProjectDir:    "/tmp/proj",
	}
}

func TestLokiAgentWorkflowApprovedOnFirstAttemptCompletes(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()
	var a *Activities

	env.OnActivity(a.PlanActivity, mock.Anything, mock.Anything).Return(&ReasonResult{
		Items: []RetrievedItem{{ID: "e1", Tier: "episodic", Summary: "prior attempt", Score: 0.8, Tokens: 50}},
		TokensUsed: 50,
	}, nil)

	env.OnActivity(a.ExecuteActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ActResult{
		AgentType: "impl", Summary: "implemented", FilesModified: []string{"widget.go"}, Outcome: "success", Quality: 0.9,
	}, nil)

	env.OnActivity(a.ReviewActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ReviewResult{
		Verdict: "approve",
	}, nil)

	env.OnActivity(a.ChecklistActivity, mock.Anything, mock.Anything).Return(&VerifyResult{
		AllVerified: true, ItemCount: 3,
	}, nil)

	var recorded OutcomeRecord
	env.OnActivity(a.RecordOutcomeActivity, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			recorded = args.Get(3).(OutcomeRecord)
		}).Return(nil)

	env.ExecuteWorkflow(LokiAgentWorkflow, baseReq())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "completed", result.Status)
	require.Equal(t, 1, result.Attempts)
	require.Equal(t, "completed", recorded.Status)
}

func TestLokiAgentWorkflowRetriesOnMildRejectionThenApproves(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()
	var a *Activities

	env.OnActivity(a.PlanActivity, mock.Anything, mock.Anything).Return(&ReasonResult{}, nil)
	env.OnActivity(a.ExecuteActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ActResult{
		AgentType: "impl", Outcome: "success",
	}, nil)

	callCount := 0
	env.OnActivity(a.ReviewActivity, mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx interface{}, req TaskRequest, act ActResult) (*ReviewResult, error) {
			callCount++
			if callCount == 1 {
				return &ReviewResult{Verdict: "reject", Rationale: "missing tests", FaultySeverity: 0.2}, nil
			}
			return &ReviewResult{Verdict: "approve"}, nil
		})

	env.OnActivity(a.ChecklistActivity, mock.Anything, mock.Anything).Return(&VerifyResult{AllVerified: true}, nil)
	env.OnActivity(a.RecordOutcomeActivity, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(LokiAgentWorkflow, baseReq())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "completed", result.Status)
	require.Equal(t, 2, result.Attempts)
}

func TestLokiAgentWorkflowFailsOutrightOnSevereFault(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()
	var a *Activities

	env.OnActivity(a.PlanActivity, mock.Anything, mock.Anything).Return(&ReasonResult{}, nil)
	env.OnActivity(a.ExecuteActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ActResult{
		AgentType: "impl", Outcome: "success",
	}, nil)
	env.OnActivity(a.ReviewActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ReviewResult{
		Verdict: "reject", Rationale: "sycophantic agreement", FaultySeverity: 0.9,
	}, nil)
	env.OnActivity(a.RecordOutcomeActivity, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(LokiAgentWorkflow, baseReq())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "failed", result.Status)
	require.Equal(t, 1, result.Attempts)
}

func TestLokiAgentWorkflowEscalatesAfterExhaustingRetries(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()
	var a *Activities

	env.OnActivity(a.PlanActivity, mock.Anything, mock.Anything).Return(&ReasonResult{}, nil)
	env.OnActivity(a.ExecuteActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ActResult{
		AgentType: "impl", Outcome: "success",
	}, nil)
	env.OnActivity(a.ReviewActivity, mock.Anything, mock.Anything, mock.Anything).Return(&ReviewResult{
		Verdict: "reject", Rationale: "keeps failing lint", FaultySeverity: 0.1,
	}, nil)
	env.OnActivity(a.RecordOutcomeActivity, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(LokiAgentWorkflow, baseReq())

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
