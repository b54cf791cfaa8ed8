package collab

import (
	"context"
	"testing"
	"time"

	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/orchestrator"
)

func TestCLICollaboratorDispatchParsesResponse(t *testing.T) {
	c := New(
		[]string{"sh", "-c", `echo '{"summary":"did it","files_modified":["a.go"],"outcome":"success","quality":0.8}'`},
		nil,
		time.Second,
	)

	proposal, err := c.Dispatch(context.Background(), orchestrator.TaskItem{ID: "t1"}, nil, composer.Agent{Type: "impl"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if proposal.Summary != "did it" {
		t.Errorf("unexpected summary: %q", proposal.Summary)
	}
	if proposal.AgentType != "impl" {
		t.Errorf("expected AgentType to be set from the calling agent, got %q", proposal.AgentType)
	}
	if len(proposal.FilesModified) != 1 || proposal.FilesModified[0] != "a.go" {
		t.Errorf("unexpected files modified: %v", proposal.FilesModified)
	}
}

func TestCLICollaboratorReviewParsesResponse(t *testing.T) {
	c := New(nil,
		[]string{"sh", "-c", `echo '{"verdict":"approve","confidence":0.9,"reasoning":"looks fine"}'`},
		time.Second,
	)

	vote, err := c.Review(context.Background(), orchestrator.TaskItem{ID: "t1"}, orchestrator.Proposal{}, composer.Agent{Type: "reviewer-a"})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if vote.Verdict != "approve" {
		t.Errorf("expected approve, got %s", vote.Verdict)
	}
	if vote.ReviewerID != "reviewer-a" {
		t.Errorf("expected reviewer id to be set from the calling reviewer, got %q", vote.ReviewerID)
	}
}

func TestCLICollaboratorDispatchFailsOnMissingCommand(t *testing.T) {
	c := New(nil, nil, time.Second)
	if _, err := c.Dispatch(context.Background(), orchestrator.TaskItem{}, nil, composer.Agent{}); err == nil {
		t.Fatal("expected an error when no dispatch command is configured")
	}
}

func TestCLICollaboratorDispatchFailsOnCommandError(t *testing.T) {
	c := New([]string{"sh", "-c", "exit 1"}, nil, time.Second)
	if _, err := c.Dispatch(context.Background(), orchestrator.TaskItem{}, nil, composer.Agent{}); err == nil {
		t.Fatal("expected an error when the command exits non-zero")
	}
}
