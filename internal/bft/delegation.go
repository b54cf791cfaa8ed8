package bft

import "sort"

// Candidate is one agent eligible for delegation scoring, carrying its
// proficiency per capability.
type Candidate struct {
	AgentID       string
	Proficiencies map[string]float64 // capability -> [0,1]
}

// DelegationResult is the outcome of SelectDelegate.
type DelegationResult struct {
	Primary   string
	Fallbacks []string // up to 3, in descending score order after Primary
}

// scoredCandidate pairs an eligible agent with its delegation score.
type scoredCandidate struct {
	agentID string
	score   float64
}

// SelectDelegate filters out agents excluded by reputation, scores the
// rest as 0.6*reputation + 0.4*average(required capability proficiency),
// and returns the best as Primary with up to 3 runners-up as Fallbacks.
// The boolean is false when every candidate is excluded or the candidate
// list is empty.
func SelectDelegate(candidates []Candidate, requiredCapabilities []string, reputation *Tracker) (DelegationResult, bool) {
	var scored []scoredCandidate
	for _, c := range candidates {
		if reputation != nil && reputation.IsExcluded(c.AgentID) {
			continue
		}
		repScore := 1.0
		if reputation != nil {
			repScore = reputation.Get(c.AgentID).Score
		}
		capScore := averageProficiency(c.Proficiencies, requiredCapabilities)
		scored = append(scored, scoredCandidate{agentID: c.AgentID, score: 0.6*repScore + 0.4*capScore})
	}

	if len(scored) == 0 {
		return DelegationResult{}, false
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	result := DelegationResult{Primary: scored[0].agentID}
	for i := 1; i < len(scored) && len(result.Fallbacks) < 3; i++ {
		result.Fallbacks = append(result.Fallbacks, scored[i].agentID)
	}
	return result, true
}

func averageProficiency(proficiencies map[string]float64, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, cap := range required {
		sum += proficiencies[cap] // missing capability contributes 0
	}
	return sum / float64(len(required))
}
