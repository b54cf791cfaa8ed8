// Package collab implements the orchestrator.Collaborator boundary as a
// subprocess call: argv is invoked with a JSON request on stdin and must
// print a JSON response on stdout, generalizing the teacher's headless CLI
// dispatch (internal/dispatch/headless.go) from a logged background process
// into a synchronous request/response round-trip the RARV loop can await.
// No provider-specific client lives here — argv names whatever CLI the
// operator has configured (a wrapper script around an LLM CLI, a stub for
// tests, anything that speaks the protocol below).
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/council"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/orchestrator"
	"github.com/loki-swarm/core/internal/retrieval"
)

// dispatchRequest is the JSON payload piped to a DispatchCmd's stdin.
type dispatchRequest struct {
	Task      orchestrator.TaskItem    `json:"task"`
	Retrieved []retrieval.ScoredItem   `json:"retrieved"`
	Agent     composer.Agent           `json:"agent"`
	Provider  string                   `json:"provider,omitempty"`
}

// dispatchResponse is the JSON payload a DispatchCmd must print to stdout.
type dispatchResponse struct {
	Summary       string          `json:"summary"`
	FilesModified []string        `json:"files_modified"`
	Outcome       memory.Outcome  `json:"outcome"`
	DurationS     float64         `json:"duration_s"`
	Quality       float64         `json:"quality"`
	Errors        []string        `json:"errors,omitempty"`
}

// reviewRequest is the JSON payload piped to a ReviewCmd's stdin.
type reviewRequest struct {
	Task     orchestrator.TaskItem `json:"task"`
	Proposal orchestrator.Proposal `json:"proposal"`
	Reviewer composer.Agent        `json:"reviewer"`
	Provider string                `json:"provider,omitempty"`
}

// reviewResponse is the JSON payload a ReviewCmd must print to stdout.
type reviewResponse struct {
	Verdict    council.Verdict `json:"verdict"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
}

// CLICollaborator implements orchestrator.Collaborator by shelling out to
// configured argv for both the Act and Review phases.
type CLICollaborator struct {
	DispatchArgv []string
	ReviewArgv   []string
	Timeout      time.Duration
	Provider     string
}

// New builds a CLICollaborator; timeout defaults to 5 minutes if zero.
func New(dispatchArgv, reviewArgv []string, timeout time.Duration) *CLICollaborator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CLICollaborator{DispatchArgv: dispatchArgv, ReviewArgv: reviewArgv, Timeout: timeout}
}

// WithProvider returns a copy of c that tags every request with the given
// provider name, so a multi-backend dispatch script can branch on it.
func (c CLICollaborator) WithProvider(provider string) *CLICollaborator {
	c.Provider = provider
	return &c
}

func (c *CLICollaborator) run(ctx context.Context, argv []string, req, resp interface{}) error {
	if len(argv) == 0 {
		return fmt.Errorf("collab: no command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("collab: marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("collab: %s: %w (stderr: %s)", argv[0], err, stderr.String())
	}

	if err := json.Unmarshal(stdout.Bytes(), resp); err != nil {
		return fmt.Errorf("collab: parse response from %s: %w", argv[0], err)
	}
	return nil
}

// Dispatch runs the configured DispatchArgv for an Act phase.
func (c *CLICollaborator) Dispatch(ctx context.Context, task orchestrator.TaskItem, retrieved []retrieval.ScoredItem, agent composer.Agent) (orchestrator.Proposal, error) {
	start := time.Now()
	var resp dispatchResponse
	if err := c.run(ctx, c.DispatchArgv, dispatchRequest{Task: task, Retrieved: retrieved, Agent: agent, Provider: c.Provider}, &resp); err != nil {
		return orchestrator.Proposal{}, err
	}
	if resp.DurationS <= 0 {
		resp.DurationS = time.Since(start).Seconds()
	}
	return orchestrator.Proposal{
		AgentType:     agent.Type,
		Summary:       resp.Summary,
		FilesModified: resp.FilesModified,
		Outcome:       resp.Outcome,
		DurationS:     resp.DurationS,
		Quality:       resp.Quality,
		Errors:        resp.Errors,
	}, nil
}

// Review runs the configured ReviewArgv for a Review phase.
func (c *CLICollaborator) Review(ctx context.Context, task orchestrator.TaskItem, proposal orchestrator.Proposal, reviewer composer.Agent) (council.Vote, error) {
	var resp reviewResponse
	if err := c.run(ctx, c.ReviewArgv, reviewRequest{Task: task, Proposal: proposal, Reviewer: reviewer, Provider: c.Provider}, &resp); err != nil {
		return council.Vote{}, err
	}
	return council.Vote{ReviewerID: reviewer.Type, Verdict: resp.Verdict, Confidence: resp.Confidence, Reasoning: resp.Reasoning}, nil
}

var _ orchestrator.Collaborator = (*CLICollaborator)(nil)
