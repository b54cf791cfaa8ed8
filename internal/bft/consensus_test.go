package bft

import (
	"testing"
	"time"
)

func TestQuorumAndFaultTolerance(t *testing.T) {
	cases := []struct {
		n       int
		wantF   int
		wantQ   int
	}{
		{4, 1, 3},
		{7, 2, 5},
		{10, 3, 7},
	}
	for _, c := range cases {
		if got := FaultTolerance(c.n); got != c.wantF {
			t.Errorf("n=%d: FaultTolerance got %d want %d", c.n, got, c.wantF)
		}
		if got := Quorum(c.n); got != c.wantQ {
			t.Errorf("n=%d: Quorum got %d want %d", c.n, got, c.wantQ)
		}
	}
}

func TestStartRoundRejectsFewerThanFourParticipants(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.StartRound("r1", "p1", "v1", []string{"a", "b", "c"}, "", time.Minute)
	if err != ErrTooFewParticipants {
		t.Fatalf("expected ErrTooFewParticipants, got %v", err)
	}
}

func TestStartRoundSelectsHighestReputationPrimary(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	tr.RecordSuccess("a")
	tr.RecordSuccess("b")
	tr.RecordFault("b", FaultRecord{Kind: FaultTimeout, Severity: 0.2, Timestamp: time.Now()})

	e := NewEngine(tr)
	round, err := e.StartRound("r1", "p1", "v1", []string{"a", "b", "c", "d"}, "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if round.PrimaryID != "a" {
		t.Errorf("expected agent a (higher reputation) as primary, got %q", round.PrimaryID)
	}
}

func TestConsensusReachesReplyAtQuorum(t *testing.T) {
	e := NewEngine(nil)
	participants := []string{"a", "b", "c", "d"}
	round, err := e.StartRound("r1", "p1", "v1", participants, "a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range participants {
		if _, err := e.RecordPrepareVote(round, p, "hash1"); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range participants {
		if _, err := e.RecordCommitVote(round, p, "hash1"); err != nil {
			t.Fatal(err)
		}
	}

	if !round.Reached() {
		t.Fatalf("expected consensus reached, round=%+v", round)
	}
	if round.Phase != PhaseReply {
		t.Errorf("expected phase Reply, got %q", round.Phase)
	}
}

func TestConsensusFailsBelowQuorum(t *testing.T) {
	e := NewEngine(nil)
	participants := []string{"a", "b", "c", "d"}
	round, err := e.StartRound("r1", "p1", "v1", participants, "a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// Only 2 of 4 commit; quorum for n=4 is 3.
	e.RecordCommitVote(round, "a", "hash1")
	e.RecordCommitVote(round, "b", "hash1")

	if round.Reached() {
		t.Fatal("expected consensus not reached below quorum")
	}
}

func TestInconsistentVoteIsDetectedAndRejected(t *testing.T) {
	e := NewEngine(nil)
	participants := []string{"a", "b", "c", "d"}
	round, err := e.StartRound("r1", "p1", "v1", participants, "a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if fault, _ := e.RecordPrepareVote(round, "a", "hash1"); fault != nil {
		t.Fatalf("unexpected fault on first vote: %+v", fault)
	}
	fault, err := e.RecordPrepareVote(round, "a", "hash2")
	if err != nil {
		t.Fatal(err)
	}
	if fault == nil || fault.Kind != FaultInconsistentVote {
		t.Fatalf("expected InconsistentVote fault, got %+v", fault)
	}
	if _, voted := round.PrepareVotes["a"]; voted && round.PrepareVotes["a"] == "hash2" {
		t.Error("expected the inconsistent vote to be rejected, not recorded")
	}
}

func TestCheckTimeoutFlagsMissingVoters(t *testing.T) {
	e := NewEngine(nil)
	participants := []string{"a", "b", "c", "d"}
	round, err := e.StartRound("r1", "p1", "v1", participants, "a", time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	e.RecordCommitVote(round, "a", "hash1")

	faults := e.CheckTimeout(round, time.Now().Add(time.Second))
	if len(faults) != 3 {
		t.Fatalf("expected 3 timeout faults for b,c,d, got %d: %+v", len(faults), faults)
	}
	for _, f := range faults {
		if f.Kind != FaultTimeout {
			t.Errorf("expected Timeout fault kind, got %q", f.Kind)
		}
	}
}
