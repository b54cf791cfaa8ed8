package bft

import (
	"fmt"
	"sort"
	"time"
)

// CrossCheck tallies a set of (agent_id, result) pairs, returning the
// majority result, a ConflictingResult fault for every agent whose result
// differs from the majority, and the overall agreement ratio.
func CrossCheck(results map[string]string, now time.Time) (majority string, faults []FaultRecord, agreementRatio float64) {
	if len(results) == 0 {
		return "", nil, 0
	}

	counts := map[string]int{}
	for _, v := range results {
		counts[v]++
	}

	var candidates []string
	for v := range counts {
		candidates = append(candidates, v)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	majority = candidates[0]

	for agentID, v := range results {
		if v != majority {
			faults = append(faults, FaultRecord{
				AgentID: agentID, Kind: FaultConflictingResult, Severity: 0.4,
				Description: fmt.Sprintf("agent %s reported %q, majority is %q", agentID, v, majority),
				Timestamp:   now,
			})
		}
	}

	agreementRatio = float64(counts[majority]) / float64(len(results))
	return majority, faults, agreementRatio
}

// CheckEquivocation detects agents that sent different hashes to
// different recipients for the same message. sent maps
// agent_id -> recipient_id -> hash.
func CheckEquivocation(sent map[string]map[string]string, now time.Time) []FaultRecord {
	var faults []FaultRecord
	for agentID, byRecipient := range sent {
		seen := map[string]bool{}
		for _, hash := range byRecipient {
			seen[hash] = true
		}
		if len(seen) > 1 {
			faults = append(faults, FaultRecord{
				AgentID: agentID, Kind: FaultEquivocation, Severity: 0.8,
				Description: fmt.Sprintf("agent %s sent %d distinct hashes to different recipients", agentID, len(seen)),
				Timestamp:   now,
			})
		}
	}
	return faults
}
