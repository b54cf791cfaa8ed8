package council

import (
	"testing"

	"github.com/loki-swarm/core/internal/bft"
)

func TestDecideApprovesOnWeightedMajority(t *testing.T) {
	votes := []Vote{
		{ReviewerID: "r1", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks solid, tests pass"},
		{ReviewerID: "r2", Verdict: VerdictApprove, Confidence: 0.8, Reasoning: "clean implementation, good coverage"},
		{ReviewerID: "r3", Verdict: VerdictReject, Confidence: 0.4, Reasoning: "missing edge case handling here"},
	}
	d := Decide(votes, NewCalibrator(), nil)
	if d.Verdict != VerdictApprove {
		t.Fatalf("expected approve, got %q (rationale=%q)", d.Verdict, d.Rationale)
	}
}

func TestDecideTieResolvesToAbstain(t *testing.T) {
	votes := []Vote{
		{ReviewerID: "r1", Verdict: VerdictApprove, Confidence: 0.5, Reasoning: "fine"},
		{ReviewerID: "r2", Verdict: VerdictReject, Confidence: 0.5, Reasoning: "not fine"},
	}
	d := Decide(votes, NewCalibrator(), nil)
	if d.Verdict != VerdictAbstain {
		t.Fatalf("expected abstain on tie, got %q", d.Verdict)
	}
}

func TestDecideExcludesVotesFromBFTExcludedReviewers(t *testing.T) {
	tracker := bft.NewTracker(bft.Thresholds{ExclusionThreshold: 0.3, RehabilitationThreshold: 0.6, MaxFaultsBeforeExclusion: 3})
	for i := 0; i < 5; i++ {
		tracker.RecordFault("bad-reviewer", bft.FaultRecord{Kind: bft.FaultInvalidMessage, Severity: 0.9})
	}
	votes := []Vote{
		{ReviewerID: "bad-reviewer", Verdict: VerdictReject, Confidence: 1.0, Reasoning: "no"},
		{ReviewerID: "good-reviewer", Verdict: VerdictApprove, Confidence: 1.0, Reasoning: "yes, ship it"},
	}
	d := Decide(votes, NewCalibrator(), tracker)
	if d.Verdict != VerdictApprove {
		t.Fatalf("expected approve once excluded reviewer's reject is dropped, got %q", d.Verdict)
	}
	if len(d.ExcludedVotes) != 1 || d.ExcludedVotes[0] != "bad-reviewer" {
		t.Fatalf("expected bad-reviewer recorded as excluded, got %+v", d.ExcludedVotes)
	}
}

func TestDecideFlagsSycophancyOnIdenticalUnanimousVotes(t *testing.T) {
	votes := []Vote{
		{ReviewerID: "r1", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
		{ReviewerID: "r2", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
		{ReviewerID: "r3", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
	}
	d := Decide(votes, NewCalibrator(), nil)
	if d.SycophancyClass != SycophancySevere {
		t.Fatalf("expected severe sycophancy for identical unanimous votes, got %q (score=%v)", d.SycophancyClass, d.Sycophancy)
	}
	if !d.Inconclusive {
		t.Fatal("expected round marked inconclusive with no devil's advocate")
	}
}

func TestDecideWithDevilsAdvocateIsNotInconclusive(t *testing.T) {
	votes := []Vote{
		{ReviewerID: "r1", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
		{ReviewerID: "r2", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
		{ReviewerID: "r3", Verdict: VerdictReject, Confidence: 0.9, Reasoning: "actually I found a real bug in the retry path"},
	}
	d := Decide(votes, NewCalibrator(), nil)
	if d.Inconclusive {
		t.Fatal("expected dissent from a devil's advocate to avoid inconclusive marking")
	}
}

func TestDecideRecordsSycophanticFaultsAgainstAgreeingReviewers(t *testing.T) {
	tracker := bft.NewTracker(bft.Thresholds{ExclusionThreshold: 0.3, RehabilitationThreshold: 0.6, MaxFaultsBeforeExclusion: 3})
	votes := []Vote{
		{ReviewerID: "r1", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
		{ReviewerID: "r2", Verdict: VerdictApprove, Confidence: 0.9, Reasoning: "looks great ship it now"},
	}
	d := Decide(votes, NewCalibrator(), tracker)
	if len(d.Faults) == 0 {
		t.Fatal("expected sycophantic faults to be recorded")
	}
	for _, f := range d.Faults {
		if f.Kind != bft.FaultSycophantic {
			t.Errorf("expected Sycophantic fault kind, got %q", f.Kind)
		}
	}
}

func TestCalibratorNewReviewerGetsFullWeight(t *testing.T) {
	c := NewCalibrator()
	if w := c.WeightFor("newcomer"); w != 1.0 {
		t.Errorf("expected new reviewer weight 1.0, got %v", w)
	}
}

func TestCalibratorConvergesTowardAgreement(t *testing.T) {
	c := NewCalibrator()
	for i := 0; i < 5; i++ {
		c.Record("r1", true)
	}
	w := c.WeightFor("r1")
	if w <= calibrationInitWeight {
		t.Errorf("expected weight to rise above init 0.5 after repeated agreement, got %v", w)
	}
}
