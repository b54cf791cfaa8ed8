package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loki-swarm/core/internal/adjuster"
	"github.com/loki-swarm/core/internal/bft"
	"github.com/loki-swarm/core/internal/checklist"
	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/council"
	"github.com/loki-swarm/core/internal/eventbus"
	"github.com/loki-swarm/core/internal/ids"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/perftrack"
	"github.com/loki-swarm/core/internal/retrieval"
)

// Proposal is one agent's attempt at a task, the unit the Council votes on.
type Proposal struct {
	AgentType     string
	Summary       string
	FilesModified []string
	Outcome       memory.Outcome
	DurationS     float64
	Quality       float64 // [0,1], feeds C9
	Errors        []string
}

// Collaborator is the external boundary the loop dispatches work across —
// an LLM-backed agent session in production, a stub in tests.
type Collaborator interface {
	Dispatch(ctx context.Context, task TaskItem, retrieved []retrieval.ScoredItem, agent composer.Agent) (Proposal, error)
	Review(ctx context.Context, task TaskItem, proposal Proposal, reviewer composer.Agent) (council.Vote, error)
}

// Session holds everything one RARV loop needs across iterations: the
// component wiring (C1-C9, C11) plus the mutable team the loop itself
// maintains.
type Session struct {
	ProjectDir string
	Namespace  string

	Queue      *Queue
	Control    ControlFiles
	Events     *eventbus.Bus
	Memory     *memory.Store
	Retrieval  *retrieval.Engine
	Reputation *bft.Tracker
	Consensus  *bft.Engine
	Calibrator *council.Calibrator
	PerfTrack  *perftrack.Tracker
	Verifier   *checklist.Verifier
	// RunHistory, if set, receives a trend record of every verification
	// pass. Nil disables history recording without affecting grading.
	RunHistory *checklist.RunHistory
	Collaborator Collaborator

	Logger *slog.Logger

	AdjustEveryNTicks int
	VerifyEveryMTicks int

	mu         sync.Mutex
	agents     []composer.Agent
	iteration  int
	phase      string
	consensusTimeout time.Duration

	recentGatePass   []bool
	recentReviewPass []bool
	checklistPath    string
	resultsPath      string
	lastChecklist    checklist.Checklist
}

// NewSession wires a Session from its component dependencies. initialAgents
// is the team C5 composed at session start.
func NewSession(projectDir, namespace string, initialAgents []composer.Agent, deps Session) *Session {
	s := deps
	s.ProjectDir = projectDir
	s.Namespace = namespace
	s.agents = append([]composer.Agent(nil), initialAgents...)
	if s.AdjustEveryNTicks <= 0 {
		s.AdjustEveryNTicks = 5
	}
	if s.VerifyEveryMTicks <= 0 {
		s.VerifyEveryMTicks = 10
	}
	if s.consensusTimeout <= 0 {
		s.consensusTimeout = 30 * time.Second
	}
	s.checklistPath = filepath.Join(projectDir, "checklist", "checklist.json")
	s.resultsPath = filepath.Join(projectDir, "checklist", "verification-results.json")
	s.phase = "idle"
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return &s
}

// Agents returns a snapshot of the current team.
func (s *Session) Agents() []composer.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]composer.Agent(nil), s.agents...)
}

// Snapshot builds the current DashboardState for the dashboard writer.
func (s *Session) Snapshot(complexity string) DashboardState {
	counts, _ := s.Queue.Counts()
	s.mu.Lock()
	iter, phase := s.iteration, s.phase
	agents := append([]composer.Agent(nil), s.agents...)
	s.mu.Unlock()
	return DashboardState{
		Phase:      phase,
		Iteration:  iter,
		Complexity: complexity,
		Mode:       "autonomous",
		Agents:     agents,
		Tasks:      countsFrom(counts),
	}
}

func (s *Session) setPhase(p string) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Run drives the supervisory loop until ctx is cancelled or a STOP control
// file appears. It never returns an error for in-band failures — those are
// recorded as faults/events; only unrecoverable setup problems bubble up
// to callers who choose to wrap Run.
func (s *Session) Run(ctx context.Context, tokenBudget int) {
	s.Events.Emit(eventbus.TypeSessionStart, map[string]any{"namespace": s.Namespace})
	for {
		if ctx.Err() != nil {
			return
		}
		if s.Control.IsStopped() {
			s.Events.Emit(eventbus.TypeSessionStop, map[string]any{"reason": "stop_signal"})
			return
		}
		if s.Control.IsPaused() {
			s.Events.Emit(eventbus.TypeSessionPause, nil)
			for s.Control.IsPaused() && ctx.Err() == nil && !s.Control.IsStopped() {
				time.Sleep(500 * time.Millisecond)
			}
			if ctx.Err() != nil {
				return
			}
			if s.Control.IsStopped() {
				continue
			}
			s.Events.Emit(eventbus.TypeSessionResume, nil)
		}

		s.RunIteration(ctx, tokenBudget)

		s.mu.Lock()
		s.iteration++
		iter := s.iteration
		s.mu.Unlock()

		if iter%s.AdjustEveryNTicks == 0 {
			s.runAdjustment()
		}
		if iter%s.VerifyEveryMTicks == 0 {
			s.runVerification(ctx)
		}
	}
}

// RunIteration executes one Reason/Act/Review/Verify cycle for the next
// pending task, or does nothing if the queue is empty.
func (s *Session) RunIteration(ctx context.Context, tokenBudget int) {
	task, ok, err := s.Queue.NextPending()
	if err != nil || !ok {
		return
	}

	now := time.Now()
	task, err = s.Queue.Transition(task.ID, StatusPending, StatusInProgress, now)
	if err != nil {
		s.Logger.Error("orchestrator: transition to in_progress failed", "task", task.ID, "error", err)
		return
	}
	s.setPhase("act")
	s.Events.Emit(eventbus.TypeTaskStarted, map[string]any{"task_id": task.ID, "title": task.Title})

	// REASON: ask C2 for context.
	rctx := retrieval.Context{Goal: task.Payload.Description, ActionType: task.Payload.Action, Phase: task.Type}
	budget := tokenBudget
	items, err := s.Retrieval.RetrieveTaskAware(rctx, 20, &budget, nil)
	if err != nil {
		s.Logger.Warn("orchestrator: retrieval failed, continuing with empty context", "error", err)
		items = nil
	}

	agent := s.agentFor(task)

	// ACT: dispatch to the owning agent.
	proposal, err := s.Collaborator.Dispatch(ctx, task, items, agent)
	if err != nil {
		s.failTask(task, now, fmt.Sprintf("dispatch error: %v", err))
		return
	}

	// REVIEW: gather votes and decide.
	s.setPhase("review")
	votes := s.gatherVotes(ctx, task, proposal)
	decision := council.Decide(votes, s.Calibrator, s.Reputation)

	if decision.Verdict != council.VerdictApprove || decision.Inconclusive {
		s.recordReviewOutcome(false)
		s.handleRejection(task, now, decision)
		return
	}
	s.recordReviewOutcome(true)

	// VERIFY (consensus): run BFT consensus on the verdict across reviewers.
	s.setPhase("verify")
	participants := reviewerIDs(votes)
	reached := s.tryConsensus(ctx, task.ID, string(decision.Verdict), participants)
	s.recordGatePass(reached)

	if !reached {
		s.Events.Emit(eventbus.TypeConsensusFailed, map[string]any{"task_id": task.ID})
		s.handleRejection(task, now, decision)
		return
	}
	s.Events.Emit(eventbus.TypeConsensusReached, map[string]any{"task_id": task.ID})

	completed, err := s.Queue.Transition(task.ID, StatusInProgress, StatusCompleted, time.Now())
	if err != nil {
		s.Logger.Error("orchestrator: transition to completed failed", "task", task.ID, "error", err)
		return
	}
	s.Events.Emit(eventbus.TypeTaskCompleted, map[string]any{"task_id": completed.ID})

	s.writeEpisode(task, proposal, memory.OutcomeSuccess)
	if s.Reputation != nil {
		s.Reputation.RecordSuccess(agent.Type)
	}
	if s.PerfTrack != nil {
		s.PerfTrack.RecordCompletion(agent.Type, proposal.Quality, proposal.DurationS)
	}
}

func (s *Session) agentFor(task TaskItem) composer.Agent {
	return s.AgentOfType(task.Type)
}

// AgentOfType returns the composed agent matching agentType, falling back
// to the first composed agent, or a bare generalist if the team is empty —
// the same fallback RunIteration uses, exposed for callers (a Temporal
// worker's activity wiring) that look up an agent outside a task context.
func (s *Session) AgentOfType(agentType string) composer.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Type == agentType {
			return a
		}
	}
	if len(s.agents) > 0 {
		return s.agents[0]
	}
	return composer.Agent{Type: "generalist", Role: "Generalist", Priority: 1}
}

// gatherVotes collects every reviewer's vote concurrently — review calls
// are independent LLM round-trips and dominate the iteration's wall time.
func (s *Session) gatherVotes(ctx context.Context, task TaskItem, proposal Proposal) []council.Vote {
	reviewers := s.reviewersFor(task)
	votes := make([]council.Vote, len(reviewers))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reviewers {
		i, r := i, r
		g.Go(func() error {
			v, err := s.Collaborator.Review(gctx, task, proposal, r)
			if err != nil {
				s.Logger.Warn("orchestrator: review failed, treating as abstain", "reviewer", r.Type, "error", err)
				v = council.Vote{ReviewerID: r.Type, Verdict: council.VerdictAbstain}
			}
			votes[i] = v
			return nil
		})
	}
	_ = g.Wait()
	return votes
}

// reviewersFor picks every agent other than the assignee as a reviewer —
// a simple, deterministic panel given the current team.
func (s *Session) reviewersFor(task TaskItem) []composer.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []composer.Agent
	for _, a := range s.agents {
		if a.Type != task.Type {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		out = append(out, s.agents...)
	}
	return out
}

func reviewerIDs(votes []council.Vote) []string {
	ids := make([]string, len(votes))
	for i, v := range votes {
		ids[i] = v.ReviewerID
	}
	return ids
}

func (s *Session) tryConsensus(ctx context.Context, proposalID, value string, participants []string) bool {
	if s.Consensus == nil || len(participants) < 4 {
		// Below the BFT minimum participant count: treat review consensus
		// (already computed by the Council) as authoritative.
		return true
	}
	round, err := s.Consensus.StartRound(ids.New(), proposalID, value, participants, "", s.consensusTimeout)
	if err != nil {
		return true
	}
	valueHash := value
	for _, p := range participants {
		s.Consensus.RecordPrepareVote(round, p, valueHash)
	}
	for _, p := range participants {
		s.Consensus.RecordCommitVote(round, p, valueHash)
	}
	return round.Reached()
}

func (s *Session) handleRejection(task TaskItem, now time.Time, decision council.Decision) {
	status := StatusReview
	for _, f := range decision.Faults {
		if f.Severity >= 0.7 {
			status = StatusFailed
			break
		}
	}
	if _, err := s.Queue.Transition(task.ID, StatusInProgress, status, time.Now()); err != nil {
		s.Logger.Error("orchestrator: transition on rejection failed", "task", task.ID, "error", err)
	}
	if status == StatusFailed {
		s.Events.Emit(eventbus.TypeTaskFailed, map[string]any{"task_id": task.ID, "rationale": decision.Rationale})
	}
	for _, f := range decision.Faults {
		s.Events.Emit(eventbus.TypeFaultDetected, map[string]any{"agent_id": f.AgentID, "kind": f.Kind})
	}
}

func (s *Session) failTask(task TaskItem, now time.Time, reason string) {
	if _, err := s.Queue.Transition(task.ID, StatusInProgress, StatusFailed, time.Now()); err != nil {
		s.Logger.Error("orchestrator: transition to failed failed", "task", task.ID, "error", err)
	}
	s.Events.Emit(eventbus.TypeTaskFailed, map[string]any{"task_id": task.ID, "reason": reason})
}

func (s *Session) writeEpisode(task TaskItem, proposal Proposal, outcome memory.Outcome) {
	if s.Memory == nil {
		return
	}
	store := s.Memory
	if s.Namespace != "" {
		store = store.WithNamespace(s.Namespace)
	}
	ep := memory.Episode{
		ID:           ids.New(),
		Timestamp:    time.Now(),
		Actor:        proposal.AgentType,
		Phase:        task.Type,
		Goal:         task.Payload.Description,
		Outcome:      outcome,
		FilesWritten: proposal.FilesModified,
	}
	if _, err := store.SaveEpisode(ep); err != nil {
		s.Logger.Warn("orchestrator: failed to persist episode", "error", err)
	}
}

func (s *Session) recordGatePass(pass bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentGatePass = appendBounded(s.recentGatePass, pass, 50)
}

func (s *Session) recordReviewOutcome(approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentReviewPass = appendBounded(s.recentReviewPass, approved, 50)
}

func appendBounded(xs []bool, x bool, max int) []bool {
	xs = append(xs, x)
	if len(xs) > max {
		xs = xs[len(xs)-max:]
	}
	return xs
}

func ratioTrue(xs []bool) float64 {
	if len(xs) == 0 {
		return 1.0
	}
	n := 0
	for _, x := range xs {
		if x {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}

// runAdjustment consults C8 with signals derived from recent gate/review
// outcomes and the last checklist run, applying any recommended mutation
// to the in-memory team.
func (s *Session) runAdjustment() {
	s.mu.Lock()
	gatePassRate := ratioTrue(s.recentGatePass)
	reviewPassRate := ratioTrue(s.recentReviewPass)
	iteration := s.iteration
	lastChecklist := s.lastChecklist
	agents := append([]composer.Agent(nil), s.agents...)
	s.mu.Unlock()

	testCoverage := 1.0
	var failedGates []string
	if len(lastChecklist.Items) > 0 {
		verified := 0
		for _, it := range lastChecklist.Items {
			if it.Status == checklist.StatusVerified {
				verified++
			}
			if it.Status == checklist.StatusFailing {
				failedGates = append(failedGates, it.Title)
			}
		}
		testCoverage = float64(verified) / float64(len(lastChecklist.Items))
	}

	signals := adjuster.Signals{
		GatePassRate:   gatePassRate,
		TestCoverage:   testCoverage,
		ReviewPassRate: reviewPassRate,
		IterationCount: iteration,
		FailedGates:    failedGates,
	}
	adj := adjuster.Adjust(agents, signals)
	s.applyAdjustment(adj)
}

func (s *Session) applyAdjustment(adj adjuster.Adjustment) {
	if adj.Action == adjuster.ActionNone {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch adj.Action {
	case adjuster.ActionAdd:
		for _, a := range adj.AgentsToAdd {
			s.agents = append(s.agents, a)
			s.Events.Emit(eventbus.TypeAgentAdded, map[string]any{"agent_type": a.Type, "rationale": adj.Rationale})
		}
	case adjuster.ActionRemove:
		for _, removeType := range adj.AgentsToRemove {
			for i, a := range s.agents {
				if a.Type == removeType {
					s.agents = append(s.agents[:i], s.agents[i+1:]...)
					s.Events.Emit(eventbus.TypeAgentRemoved, map[string]any{"agent_type": removeType, "rationale": adj.Rationale})
					break
				}
			}
		}
	}
}

// runVerification runs C11 against the current checklist and updates the
// running summary used by the next adjustment pass and by session
// completion detection.
func (s *Session) runVerification(ctx context.Context) {
	if s.Verifier == nil {
		return
	}
	cl, err := checklist.LoadChecklist(s.checklistPath)
	if err != nil {
		s.Logger.Warn("orchestrator: failed to load checklist", "error", err)
		return
	}
	updated, summary := s.Verifier.Verify(ctx, cl, time.Now())
	if err := checklist.SaveResults(s.checklistPath, s.resultsPath, updated, summary); err != nil {
		s.Logger.Warn("orchestrator: failed to persist checklist results", "error", err)
	}
	if s.RunHistory != nil {
		if err := s.RunHistory.Record(summary); err != nil {
			s.Logger.Warn("orchestrator: failed to record checklist run history", "error", err)
		}
	}
	s.mu.Lock()
	s.lastChecklist = updated
	s.mu.Unlock()

	s.Events.Emit(eventbus.TypeChecklistVerified, map[string]any{"item_count": len(updated.Items)})
	if checklist.AllVerified(updated) {
		s.Events.Emit(eventbus.TypeSessionStop, map[string]any{"reason": "session_complete"})
	}
}
