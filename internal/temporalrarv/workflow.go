package temporalrarv

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// maxReviewRetries bounds the total number of Act/Review attempts (the
// first one included) a rejected-but-not-faulty task gets before it
// escalates.
const maxReviewRetries = 3

// severeFaultSeverity mirrors the orchestrator's rejection-routing rule:
// a fault at or above this severity fails the task outright instead of
// sending it back for another attempt.
const severeFaultSeverity = 0.7

// LokiAgentWorkflow is C10's per-task cycle: Reason (retrieval context),
// then up to maxReviewRetries rounds of Act (dispatch) / Review (council)
// until the council approves, then Verify (checklist) and record.
func LokiAgentWorkflow(ctx workflow.Context, req TaskRequest) (WorkflowResult, error) {
	startTime := workflow.Now(ctx)
	logger := workflow.GetLogger(ctx)

	planOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	}
	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	reviewOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	}
	verifyOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	recordOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}

	var a *Activities

	// ===== REASON =====
	logger.Info("RARV: reason phase", "task", req.TaskID)
	planCtx := workflow.WithActivityOptions(ctx, planOpts)
	var reason ReasonResult
	if err := workflow.ExecuteActivity(planCtx, a.PlanActivity, req).Get(ctx, &reason); err != nil {
		return WorkflowResult{}, fmt.Errorf("reason phase failed: %w", err)
	}

	attemptReq := req
	var lastAct ActResult
	var lastRationale string

	for attempt := 0; attempt < maxReviewRetries; attempt++ {
		// ===== ACT =====
		logger.Info("RARV: act phase", "task", req.TaskID, "attempt", attempt+1)
		actCtx := workflow.WithActivityOptions(ctx, actOpts)
		var act ActResult
		if err := workflow.ExecuteActivity(actCtx, a.ExecuteActivity, attemptReq, reason).Get(ctx, &act); err != nil {
			lastRationale = fmt.Sprintf("attempt %d act error: %s", attempt+1, err.Error())
			continue
		}
		lastAct = act

		// ===== REVIEW =====
		logger.Info("RARV: review phase", "task", req.TaskID, "attempt", attempt+1)
		reviewCtx := workflow.WithActivityOptions(ctx, reviewOpts)
		var review ReviewResult
		if err := workflow.ExecuteActivity(reviewCtx, a.ReviewActivity, attemptReq, act).Get(ctx, &review); err != nil {
			lastRationale = fmt.Sprintf("attempt %d review error: %s", attempt+1, err.Error())
			continue
		}

		if review.Verdict != "approve" || review.Inconclusive {
			lastRationale = review.Rationale
			if review.FaultySeverity >= severeFaultSeverity {
				logger.Error("RARV: rejected with a severe fault, failing task", "task", req.TaskID, "rationale", review.Rationale)
				recordOutcome(ctx, recordOpts, a, attemptReq, act, "failed", attempt+1, workflow.Now(ctx).Sub(startTime), review.Rationale)
				return WorkflowResult{TaskID: req.TaskID, Status: "failed", Attempts: attempt + 1, Rationale: review.Rationale}, nil
			}
			logger.Warn("RARV: review rejected, retrying with feedback", "task", req.TaskID, "rationale", review.Rationale)
			attemptReq.Description = req.Description + "\nPrevious attempt rejected: " + review.Rationale
			continue
		}

		// ===== VERIFY =====
		logger.Info("RARV: verify phase", "task", req.TaskID)
		verifyCtx := workflow.WithActivityOptions(ctx, verifyOpts)
		var verify VerifyResult
		if err := workflow.ExecuteActivity(verifyCtx, a.ChecklistActivity, attemptReq).Get(ctx, &verify); err != nil {
			logger.Warn("RARV: checklist verification failed, proceeding without it", "error", err)
			verify = VerifyResult{AllVerified: true}
		}

		duration := workflow.Now(ctx).Sub(startTime)
		status := "completed"
		if verify.ItemCount > 0 && !verify.AllVerified {
			status = "review"
		}
		recordOutcome(ctx, recordOpts, a, attemptReq, act, status, attempt+1, duration, "")
		return WorkflowResult{TaskID: req.TaskID, Status: status, Attempts: attempt + 1}, nil
	}

	// ===== ESCALATE =====
	logger.Error("RARV: all attempts exhausted, escalating", "task", req.TaskID)
	duration := workflow.Now(ctx).Sub(startTime)
	recordOutcome(ctx, recordOpts, a, attemptReq, lastAct, "escalated", maxReviewRetries, duration, lastRationale)
	return WorkflowResult{TaskID: req.TaskID, Status: "escalated", Attempts: maxReviewRetries, Rationale: lastRationale},
		fmt.Errorf("task escalated after %d attempts: %s", maxReviewRetries, lastRationale)
}

func recordOutcome(ctx workflow.Context, opts workflow.ActivityOptions, a *Activities, req TaskRequest, act ActResult, status string, attempts int, duration time.Duration, rationale string) {
	recordCtx := workflow.WithActivityOptions(ctx, opts)
	_ = workflow.ExecuteActivity(recordCtx, a.RecordOutcomeActivity, req, act, OutcomeRecord{
		TaskID:     req.TaskID,
		AgentType:  act.AgentType,
		Status:     status,
		Attempts:   attempts,
		DurationS:  duration.Seconds(),
		Rationale:  rationale,
		RecordedAt: workflow.Now(ctx),
	}).Get(ctx, nil)
}
