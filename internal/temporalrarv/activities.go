package temporalrarv

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loki-swarm/core/internal/bft"
	"github.com/loki-swarm/core/internal/checklist"
	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/council"
	"github.com/loki-swarm/core/internal/ids"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/orchestrator"
	"github.com/loki-swarm/core/internal/perftrack"
	"github.com/loki-swarm/core/internal/retrieval"
)

// Activities holds every component dependency the RARV activities call
// into. Activity methods run outside workflow determinism constraints, so
// they're free to use real contexts, goroutines and I/O.
type Activities struct {
	Retrieval    *retrieval.Engine
	Collaborator orchestrator.Collaborator
	Calibrator   *council.Calibrator
	Reputation   *bft.Tracker
	PerfTrack    *perftrack.Tracker
	Verifier     *checklist.Verifier
	Memory       *memory.Store

	// AgentFor resolves an agent type string to its composer.Agent record.
	// The orchestrator owns team composition; this is a read-only lookup.
	AgentFor func(agentType string) composer.Agent
}

func (a *Activities) agent(agentType string) composer.Agent {
	if a.AgentFor != nil {
		return a.AgentFor(agentType)
	}
	return composer.Agent{Type: agentType, Role: agentType, Priority: 2}
}

func taskItemFrom(req TaskRequest) orchestrator.TaskItem {
	return orchestrator.TaskItem{
		ID:   req.TaskID,
		Type: req.TaskType,
		Title: req.Title,
		Payload: orchestrator.Payload{
			Action:      req.Action,
			Priority:    req.Priority,
			Description: req.Description,
		},
	}
}

// PlanActivity implements REASON: it asks retrieval for task-aware context.
func (a *Activities) PlanActivity(ctx context.Context, req TaskRequest) (*ReasonResult, error) {
	rctx := retrieval.Context{Goal: req.Description, ActionType: req.Action, Phase: req.TaskType}
	budget := req.TokenBudget
	if budget <= 0 {
		budget = 4000
	}
	scored, err := a.Retrieval.RetrieveTaskAware(rctx, 20, &budget, nil)
	if err != nil {
		return nil, fmt.Errorf("temporalrarv: plan activity: %w", err)
	}

	items := make([]RetrievedItem, len(scored))
	tokens := 0
	for i, it := range scored {
		items[i] = RetrievedItem{ID: it.ID, Tier: string(it.Tier), Summary: it.Summary, Score: it.Score, Tokens: it.EstimatedTokens}
		tokens += it.EstimatedTokens
	}
	return &ReasonResult{Items: items, TokensUsed: tokens}, nil
}

func toScoredItems(items []RetrievedItem) []retrieval.ScoredItem {
	out := make([]retrieval.ScoredItem, len(items))
	for i, it := range items {
		out[i] = retrieval.ScoredItem{ID: it.ID, Tier: memory.Tier(it.Tier), Summary: it.Summary, Score: it.Score, EstimatedTokens: it.Tokens}
	}
	return out
}

// ExecuteActivity implements ACT: it dispatches the task to the owning
// collaborator.
func (a *Activities) ExecuteActivity(ctx context.Context, req TaskRequest, reason ReasonResult) (*ActResult, error) {
	task := taskItemFrom(req)
	agent := a.agent(req.AgentType)

	proposal, err := a.Collaborator.Dispatch(ctx, task, toScoredItems(reason.Items), agent)
	if err != nil {
		return nil, fmt.Errorf("temporalrarv: execute activity: %w", err)
	}
	return &ActResult{
		AgentType:     proposal.AgentType,
		Summary:       proposal.Summary,
		FilesModified: proposal.FilesModified,
		Outcome:       string(proposal.Outcome),
		DurationS:     proposal.DurationS,
		Quality:       proposal.Quality,
		Errors:        proposal.Errors,
	}, nil
}

func toProposal(act ActResult) orchestrator.Proposal {
	return orchestrator.Proposal{
		AgentType:     act.AgentType,
		Summary:       act.Summary,
		FilesModified: act.FilesModified,
		Outcome:       memory.Outcome(act.Outcome),
		DurationS:     act.DurationS,
		Quality:       act.Quality,
		Errors:        act.Errors,
	}
}

// ReviewActivity implements REVIEW: it gathers the panel's votes
// concurrently and runs them through the council.
func (a *Activities) ReviewActivity(ctx context.Context, req TaskRequest, act ActResult) (*ReviewResult, error) {
	task := taskItemFrom(req)
	proposal := toProposal(act)

	reviewers := req.ReviewerTypes
	if len(reviewers) == 0 {
		reviewers = []string{req.AgentType}
	}
	votes := make([]council.Vote, len(reviewers))

	g, gctx := errgroup.WithContext(ctx)
	for i, reviewerType := range reviewers {
		i, reviewerType := i, reviewerType
		g.Go(func() error {
			reviewer := a.agent(reviewerType)
			v, err := a.Collaborator.Review(gctx, task, proposal, reviewer)
			if err != nil {
				v = council.Vote{ReviewerID: reviewer.Type, Verdict: council.VerdictAbstain}
			}
			votes[i] = v
			return nil
		})
	}
	_ = g.Wait()

	decision := council.Decide(votes, a.Calibrator, a.Reputation)

	maxSeverity := 0.0
	for _, f := range decision.Faults {
		if f.Severity > maxSeverity {
			maxSeverity = f.Severity
		}
	}

	return &ReviewResult{
		Verdict:         string(decision.Verdict),
		Inconclusive:    decision.Inconclusive,
		Rationale:       decision.Rationale,
		SycophancyScore: decision.Sycophancy,
		SycophancyClass: string(decision.SycophancyClass),
		FaultySeverity:  maxSeverity,
	}, nil
}

// ChecklistActivity implements VERIFY: it re-grades the project checklist.
func (a *Activities) ChecklistActivity(ctx context.Context, req TaskRequest) (*VerifyResult, error) {
	if a.Verifier == nil {
		return &VerifyResult{AllVerified: true}, nil
	}
	checklistPath := filepath.Join(req.ProjectDir, "checklist", "checklist.json")
	resultsPath := filepath.Join(req.ProjectDir, "checklist", "verification-results.json")

	cl, err := checklist.LoadChecklist(checklistPath)
	if err != nil {
		return nil, fmt.Errorf("temporalrarv: checklist activity: %w", err)
	}
	updated, summary := a.Verifier.Verify(ctx, cl, time.Now())
	if err := checklist.SaveResults(checklistPath, resultsPath, updated, summary); err != nil {
		return nil, fmt.Errorf("temporalrarv: checklist activity: persist: %w", err)
	}

	failing := 0
	for _, it := range updated.Items {
		if it.Status == checklist.StatusFailing {
			failing++
		}
	}
	return &VerifyResult{
		AllVerified:  checklist.AllVerified(updated),
		ItemCount:    len(updated.Items),
		FailingCount: failing,
	}, nil
}

// RecordOutcomeActivity persists the workflow's outcome: a memory episode,
// and — on success — the reputation and performance updates that feed C7
// and C9.
func (a *Activities) RecordOutcomeActivity(ctx context.Context, req TaskRequest, act ActResult, rec OutcomeRecord) error {
	if a.Memory != nil {
		store := a.Memory
		if req.Namespace != "" {
			store = store.WithNamespace(req.Namespace)
		}
		ep := memory.Episode{
			ID:           ids.New(),
			Timestamp:    rec.RecordedAt,
			Actor:        rec.AgentType,
			Phase:        req.TaskType,
			Goal:         req.Description,
			Outcome:      outcomeFor(rec.Status),
			FilesWritten: act.FilesModified,
		}
		if _, err := store.SaveEpisode(ep); err != nil {
			return fmt.Errorf("temporalrarv: record outcome: save episode: %w", err)
		}
	}

	if rec.Status == "completed" {
		if a.Reputation != nil {
			a.Reputation.RecordSuccess(rec.AgentType)
		}
		if a.PerfTrack != nil {
			a.PerfTrack.RecordCompletion(rec.AgentType, act.Quality, rec.DurationS)
		}
	}
	return nil
}

func outcomeFor(status string) memory.Outcome {
	if status == "completed" {
		return memory.OutcomeSuccess
	}
	return memory.OutcomeFailure
}
