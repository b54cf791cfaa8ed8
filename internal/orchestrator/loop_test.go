package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loki-swarm/core/internal/bft"
	"github.com/loki-swarm/core/internal/checklist"
	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/council"
	"github.com/loki-swarm/core/internal/eventbus"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/retrieval"
	"github.com/loki-swarm/core/internal/vectorindex"
)

// fakeCollaborator returns canned proposals/votes for every task so the
// loop's plumbing can be tested without an actual LLM agent behind it.
type fakeCollaborator struct {
	verdict council.Verdict
	dispatchErr error
}

func (f *fakeCollaborator) Dispatch(ctx context.Context, task TaskItem, retrieved []retrieval.ScoredItem, agent composer.Agent) (Proposal, error) {
	if f.dispatchErr != nil {
		return Proposal{}, f.dispatchErr
	}
	return Proposal{
		AgentType:     agent.Type,
		Summary:       "did the thing",
		FilesModified: []string{"main.go"},
		Outcome:       memory.OutcomeSuccess,
		DurationS:     1.5,
		Quality:       0.8,
	}, nil
}

// Review gives each reviewer its own reasoning text, so an agreeing panel is
// not scored as sycophantic by the council.
func (f *fakeCollaborator) Review(ctx context.Context, task TaskItem, proposal Proposal, reviewer composer.Agent) (council.Vote, error) {
	return council.Vote{ReviewerID: reviewer.Type, Verdict: f.verdict, Confidence: 0.9, Reasoning: reviewer.Type}, nil
}

func newTestSession(t *testing.T, collab Collaborator) *Session {
	t.Helper()
	dir := t.TempDir()

	bus, err := eventbus.Open(filepath.Join(dir, "events.jsonl"), 16, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bus.Close() })

	store := memory.New(filepath.Join(dir, "memory"))
	engine := retrieval.NewEngine(store, vectorindex.New(8))
	reputation := bft.NewTracker(bft.Thresholds{})
	consensus := bft.NewEngine(reputation)
	calibrator := council.NewCalibrator()
	verifier := checklist.NewVerifier(dir)

	agents := []composer.Agent{
		{Type: "impl", Role: "Implementer", Priority: 1},
		{Type: "reviewer-a", Role: "Reviewer", Priority: 2},
		{Type: "reviewer-b", Role: "Reviewer", Priority: 2},
	}

	s := NewSession(dir, "", agents, Session{
		Queue:        NewQueue(filepath.Join(dir, "tasks")),
		Control:      ControlFiles{Dir: filepath.Join(dir, ".loki")},
		Events:       bus,
		Memory:       store,
		Retrieval:    engine,
		Reputation:   reputation,
		Consensus:    consensus,
		Calibrator:   calibrator,
		Verifier:     verifier,
		Collaborator: collab,
		Logger:       slog.Default(),
	})
	return s
}

func TestRunIterationApprovedTaskReachesCompleted(t *testing.T) {
	s := newTestSession(t, &fakeCollaborator{verdict: council.VerdictApprove})

	now := time.Now()
	task := NewTask("impl", "build the widget", Payload{Action: "implement", Priority: 1, Description: "build it"}, now)
	if err := s.Queue.Enqueue(task); err != nil {
		t.Fatal(err)
	}

	s.RunIteration(context.Background(), 4000)

	counts, err := s.Queue.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusCompleted] != 1 {
		t.Fatalf("expected task to land in completed, counts=%+v", counts)
	}

	rep := s.Reputation.Get("impl")
	if rep.SuccessfulInteractions == 0 {
		t.Fatal("expected reputation success to be recorded")
	}
}

func TestRunIterationRejectedTaskGoesToReviewOrFailed(t *testing.T) {
	s := newTestSession(t, &fakeCollaborator{verdict: council.VerdictReject})

	now := time.Now()
	task := NewTask("impl", "build the widget", Payload{Action: "implement", Priority: 1, Description: "build it"}, now)
	if err := s.Queue.Enqueue(task); err != nil {
		t.Fatal(err)
	}

	s.RunIteration(context.Background(), 4000)

	counts, err := s.Queue.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusReview]+counts[StatusFailed] != 1 {
		t.Fatalf("expected task to land in review or failed, counts=%+v", counts)
	}
	if counts[StatusCompleted] != 0 {
		t.Fatal("rejected task should not reach completed")
	}
}

func TestRunEmitsSessionStopOnStopControlFile(t *testing.T) {
	s := newTestSession(t, &fakeCollaborator{verdict: council.VerdictApprove})
	if err := os.MkdirAll(s.Control.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.Control.RequestStop(time.Now()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), 4000)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return promptly after STOP signal")
	}
}

func TestAgentForFallsBackToGeneralistWhenTeamEmpty(t *testing.T) {
	s := newTestSession(t, &fakeCollaborator{verdict: council.VerdictApprove})
	s.mu.Lock()
	s.agents = nil
	s.mu.Unlock()

	a := s.agentFor(TaskItem{Type: "unknown"})
	if a.Type != "generalist" {
		t.Fatalf("expected generalist fallback, got %q", a.Type)
	}
}
