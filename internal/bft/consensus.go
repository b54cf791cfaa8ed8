package bft

import (
	"fmt"
	"sync"
	"time"
)

// Phase is a PBFT-lite round's current stage.
type Phase string

const (
	PhasePrePrepare Phase = "PrePrepare"
	PhasePrepare    Phase = "Prepare"
	PhaseCommit     Phase = "Commit"
	PhaseReply      Phase = "Reply"
)

// Round is one PBFT-lite consensus round.
type Round struct {
	mu sync.Mutex

	ID           string
	ProposalID   string
	Phase        Phase
	PrimaryID    string
	Value        string
	Participants []string
	PrepareVotes map[string]string // agent_id -> value_hash
	CommitVotes  map[string]string
	CompletedAt  time.Time
	Timeout      time.Duration

	quorum int
	deadline time.Time
}

// ErrTooFewParticipants is returned when fewer than 4 participants are
// supplied to StartRound; BFT needs n >= 3f+1 with f >= 1 to mean anything.
var ErrTooFewParticipants = fmt.Errorf("bft: minimum 4 participants required for consensus")

// FaultTolerance returns f = floor((n-1)/3) for n participants.
func FaultTolerance(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}

// Quorum returns q = 2f+1 for n participants.
func Quorum(n int) int {
	return 2*FaultTolerance(n) + 1
}

// Engine drives consensus rounds and tracks per-proposal vote history to
// detect inconsistent votes across Prepare/Commit.
type Engine struct {
	mu         sync.Mutex
	reputation *Tracker
	voteHistory map[string]map[string]string // proposalID -> agentID -> first hash seen
	now        func() time.Time
}

// NewEngine builds a consensus engine backed by reputation for primary
// selection and delegation scoring.
func NewEngine(reputation *Tracker) *Engine {
	return &Engine{reputation: reputation, voteHistory: map[string]map[string]string{}, now: time.Now}
}

// StartRound initialises a new round. primaryOverride, if non-empty, forces
// the primary; otherwise the highest-reputation non-excluded participant
// is chosen.
func (e *Engine) StartRound(roundID, proposalID, value string, participants []string, primaryOverride string, timeout time.Duration) (*Round, error) {
	if len(participants) < 4 {
		return nil, ErrTooFewParticipants
	}

	primary := primaryOverride
	if primary == "" {
		primary = e.selectPrimary(participants)
	}

	return &Round{
		ID: roundID, ProposalID: proposalID, Phase: PhasePrePrepare,
		PrimaryID: primary, Value: value, Participants: append([]string(nil), participants...),
		PrepareVotes: map[string]string{}, CommitVotes: map[string]string{},
		quorum: Quorum(len(participants)), Timeout: timeout,
		deadline: e.now().Add(timeout),
	}, nil
}

func (e *Engine) selectPrimary(participants []string) string {
	best := participants[0]
	bestScore := -1.0
	for _, p := range participants {
		if e.reputation != nil && e.reputation.IsExcluded(p) {
			continue
		}
		score := 1.0
		if e.reputation != nil {
			score = e.reputation.Get(p).Score
		}
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

// RecordPrepareVote records agentID's vote for the round's Prepare phase.
// A vote that conflicts with an earlier vote from the same agent on the
// same proposal is rejected and reported as an InconsistentVote fault.
func (e *Engine) RecordPrepareVote(r *Round, agentID, valueHash string) (*FaultRecord, error) {
	if fault := e.checkConsistency(r.ProposalID, agentID, valueHash); fault != nil {
		return fault, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.PrepareVotes[agentID] = valueHash
	if len(r.PrepareVotes) >= r.quorum && r.Phase == PhasePrePrepare {
		r.Phase = PhasePrepare
	}
	return nil, nil
}

// RecordCommitVote records agentID's vote for the round's Commit phase.
func (e *Engine) RecordCommitVote(r *Round, agentID, valueHash string) (*FaultRecord, error) {
	if fault := e.checkConsistency(r.ProposalID, agentID, valueHash); fault != nil {
		return fault, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.CommitVotes[agentID] = valueHash
	if len(r.PrepareVotes) >= r.quorum {
		r.Phase = PhaseCommit
	}
	if len(r.CommitVotes) >= r.quorum {
		r.Phase = PhaseReply
		r.CompletedAt = e.now()
	}
	return nil, nil
}

// checkConsistency records the first hash seen from agentID for proposalID
// and flags any later, differing hash as an InconsistentVote fault.
func (e *Engine) checkConsistency(proposalID, agentID, valueHash string) *FaultRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	byAgent, ok := e.voteHistory[proposalID]
	if !ok {
		byAgent = map[string]string{}
		e.voteHistory[proposalID] = byAgent
	}
	prior, seen := byAgent[agentID]
	if !seen {
		byAgent[agentID] = valueHash
		return nil
	}
	if prior == valueHash {
		return nil
	}
	return &FaultRecord{
		AgentID: agentID, Kind: FaultInconsistentVote, Severity: 0.5,
		Description: fmt.Sprintf("agent %s voted %q then %q for proposal %s", agentID, prior, valueHash, proposalID),
		Evidence:    map[string]string{"prior_hash": prior, "new_hash": valueHash},
		Timestamp:   e.now(),
	}
}

// Reached reports whether r has achieved consensus: Reply phase with the
// committed hash backed by at least quorum commit votes.
func (r *Round) Reached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Phase == PhaseReply && len(r.CommitVotes) >= r.quorum
}

// CheckTimeout returns a Timeout fault for every participant that has not
// yet cast a commit vote once now is past the round's deadline.
func (e *Engine) CheckTimeout(r *Round, now time.Time) []FaultRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Before(r.deadline) || r.Phase == PhaseReply {
		return nil
	}

	var faults []FaultRecord
	for _, p := range r.Participants {
		if _, voted := r.CommitVotes[p]; voted {
			continue
		}
		faults = append(faults, FaultRecord{
			AgentID: p, Kind: FaultTimeout, Severity: 0.3,
			Description: fmt.Sprintf("agent %s did not commit before round %s deadline", p, r.ID),
			Timestamp:   now,
		})
	}
	return faults
}
