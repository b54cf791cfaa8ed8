package bft

import (
	"testing"
	"time"
)

func TestCrossCheckReturnsMajorityAndFlagsDissenters(t *testing.T) {
	results := map[string]string{
		"a": "ok", "b": "ok", "c": "ok", "d": "bad",
	}
	majority, faults, ratio := CrossCheck(results, time.Now())
	if majority != "ok" {
		t.Fatalf("expected majority 'ok', got %q", majority)
	}
	if len(faults) != 1 || faults[0].AgentID != "d" {
		t.Fatalf("expected one fault against agent d, got %+v", faults)
	}
	if ratio != 0.75 {
		t.Errorf("expected agreement ratio 0.75, got %v", ratio)
	}
}

func TestCrossCheckEmptyResultsReturnsZeroRatio(t *testing.T) {
	_, faults, ratio := CrossCheck(map[string]string{}, time.Now())
	if ratio != 0 || faults != nil {
		t.Errorf("expected zero ratio and no faults for empty input, got ratio=%v faults=%v", ratio, faults)
	}
}

func TestCheckEquivocationDetectsDivergentHashes(t *testing.T) {
	sent := map[string]map[string]string{
		"honest": {"r1": "h1", "r2": "h1"},
		"liar":   {"r1": "h1", "r2": "h2"},
	}
	faults := CheckEquivocation(sent, time.Now())
	if len(faults) != 1 || faults[0].AgentID != "liar" {
		t.Fatalf("expected one equivocation fault against 'liar', got %+v", faults)
	}
	if faults[0].Kind != FaultEquivocation {
		t.Errorf("expected Equivocation fault kind, got %q", faults[0].Kind)
	}
}
