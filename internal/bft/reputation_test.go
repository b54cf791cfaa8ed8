package bft

import (
	"testing"
	"time"
)

func defaultThresholds() Thresholds {
	return Thresholds{ExclusionThreshold: 0.3, RehabilitationThreshold: 0.6, MaxFaultsBeforeExclusion: 3}
}

func TestNewAgentStartsAtFullScore(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	r := tr.Get("agent-1")
	if r.Score != 1.0 {
		t.Errorf("expected fresh agent score 1.0, got %v", r.Score)
	}
}

func TestRecordSuccessUpdatesScore(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	tr.RecordSuccess("agent-1")
	tr.RecordSuccess("agent-1")
	r := tr.Get("agent-1")
	if r.Score != 1.0 || r.TotalInteractions != 2 {
		t.Errorf("expected perfect score after only successes, got %+v", r)
	}
}

func TestRecordFaultLowersScoreAndCanExclude(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	tr.RecordSuccess("agent-1")

	for i := 0; i < 5; i++ {
		tr.RecordFault("agent-1", FaultRecord{Kind: FaultInvalidMessage, Severity: 0.9, Timestamp: time.Now()})
	}
	r := tr.Get("agent-1")
	if !r.IsExcluded {
		t.Fatalf("expected agent to be excluded after severe faults, got %+v", r)
	}
	if r.ExclusionReason == "" {
		t.Error("expected exclusion reason set")
	}
}

func TestExcludedAgentIsExcludedFromTracker(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	for i := 0; i < 5; i++ {
		tr.RecordFault("agent-1", FaultRecord{Kind: FaultInvalidMessage, Severity: 0.9, Timestamp: time.Now()})
	}
	if !tr.IsExcluded("agent-1") {
		t.Fatal("expected IsExcluded to report true")
	}
}

func TestRehabilitationClearsExclusionOnceScoreRecovers(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	for i := 0; i < 5; i++ {
		tr.RecordFault("agent-1", FaultRecord{Kind: FaultInvalidMessage, Severity: 0.3, Timestamp: time.Now()})
	}
	if !tr.IsExcluded("agent-1") {
		t.Fatal("expected exclusion before rehabilitation")
	}

	for i := 0; i < 50; i++ {
		tr.RecordSuccess("agent-1")
	}
	r := tr.Get("agent-1")
	if r.IsExcluded {
		t.Fatalf("expected rehabilitation to clear exclusion once score recovered, got %+v", r)
	}
}

func TestFaultsAreBoundedToLastTen(t *testing.T) {
	tr := NewTracker(defaultThresholds())
	for i := 0; i < 15; i++ {
		tr.RecordFault("agent-1", FaultRecord{Kind: FaultTimeout, Severity: 0.05, Timestamp: time.Now()})
	}
	r := tr.Get("agent-1")
	if len(r.Faults) != maxScoredFaults {
		t.Fatalf("expected faults bounded to %d, got %d", maxScoredFaults, len(r.Faults))
	}
}
