// Package council implements the review-aggregation and sycophancy-detection
// layer (C6): it weighs reviewer votes by confidence and historical
// calibration, reaches a verdict, and flags rubber-stamping before it can
// reach a BFT decision.
package council

import (
	"strconv"
	"strings"

	"github.com/loki-swarm/core/internal/bft"
)

// Verdict is the outcome of a deliberation round.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictAbstain Verdict = "abstain"
)

// IssueSeverity tags a reviewer-reported issue.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// Issue is one concern raised by a reviewer against a proposal.
type Issue struct {
	Description string        `json:"description"`
	Severity    IssueSeverity `json:"severity"`
}

// Vote is a single reviewer's assessment of a proposal.
type Vote struct {
	ReviewerID string  `json:"reviewer_id"`
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"` // [0,1]
	Reasoning  string  `json:"reasoning"`
	Issues     []Issue `json:"issues,omitempty"`
}

// SycophancyClass buckets the computed sycophancy score.
type SycophancyClass string

const (
	SycophancyIndependent SycophancyClass = "independent" // < 0.3
	SycophancyMild        SycophancyClass = "mild"
	SycophancyModerate    SycophancyClass = "moderate"
	SycophancySevere      SycophancyClass = "severe" // >= 0.7
)

const (
	sycophancyModerateThreshold = 0.5
	sycophancySevereThreshold   = 0.7
	sycophancyMildThreshold     = 0.3
)

// Decision is the Council's output for one round.
type Decision struct {
	Verdict        Verdict         `json:"verdict"`
	Sycophancy     float64         `json:"sycophancy"`
	SycophancyClass SycophancyClass `json:"sycophancy_class"`
	Rationale      string          `json:"rationale"`
	Inconclusive   bool            `json:"inconclusive"`
	ExcludedVotes  []string        `json:"excluded_votes,omitempty"`
	Faults         []bft.FaultRecord `json:"faults,omitempty"`
}

// Calibrator supplies a reviewer's historical agreement weight, tracked as
// an EMA (alpha=0.1) of how often the reviewer's verdict matched the final
// decision. New reviewers (< 5 prior reviews) get full weight 1.0.
type Calibrator struct {
	reviewCounts map[string]int
	weights      map[string]float64
}

const (
	calibrationEMAAlpha       = 0.1
	calibrationInitWeight     = 0.5
	calibrationNewReviewerMin = 5
)

// NewCalibrator returns an empty calibrator; all reviewers start untracked.
func NewCalibrator() *Calibrator {
	return &Calibrator{
		reviewCounts: make(map[string]int),
		weights:      make(map[string]float64),
	}
}

// WeightFor returns the calibration weight to apply to reviewerID's vote.
func (c *Calibrator) WeightFor(reviewerID string) float64 {
	if c == nil {
		return 1.0
	}
	if c.reviewCounts[reviewerID] < calibrationNewReviewerMin {
		return 1.0
	}
	if w, ok := c.weights[reviewerID]; ok {
		return w
	}
	return calibrationInitWeight
}

// Record updates a reviewer's calibration weight after a verdict is known,
// moving the weight toward 1.0 if the reviewer agreed with the final
// verdict, or toward 0.0 otherwise.
func (c *Calibrator) Record(reviewerID string, agreedWithFinal bool) {
	if c == nil {
		return
	}
	c.reviewCounts[reviewerID]++
	prev, ok := c.weights[reviewerID]
	if !ok {
		prev = calibrationInitWeight
	}
	target := 0.0
	if agreedWithFinal {
		target = 1.0
	}
	c.weights[reviewerID] = prev + calibrationEMAAlpha*(target-prev)
}

// Decide aggregates votes into a verdict, weighting by confidence times
// calibration, rejecting votes from BFT-excluded reviewers, and scoring the
// round for sycophancy.
func Decide(votes []Vote, calibration *Calibrator, reputation *bft.Tracker) Decision {
	var eligible []Vote
	var excluded []string
	for _, v := range votes {
		if reputation != nil && reputation.IsExcluded(v.ReviewerID) {
			excluded = append(excluded, v.ReviewerID)
			continue
		}
		eligible = append(eligible, v)
	}

	mass := map[Verdict]float64{VerdictApprove: 0, VerdictReject: 0, VerdictAbstain: 0}
	for _, v := range eligible {
		w := v.Confidence * calibration.WeightFor(v.ReviewerID)
		verdict := v.Verdict
		if verdict != VerdictApprove && verdict != VerdictReject && verdict != VerdictAbstain {
			verdict = VerdictAbstain
		}
		mass[verdict] += w
	}

	verdict := argmaxVerdict(mass)

	score := sycophancyScore(eligible)
	class := classify(score)

	d := Decision{
		Verdict:         verdict,
		Sycophancy:      score,
		SycophancyClass: class,
		ExcludedVotes:   excluded,
	}

	if class == SycophancyModerate || class == SycophancySevere {
		agreeing := agreeingReviewers(eligible, verdict)
		for _, reviewerID := range agreeing {
			f := bft.FaultRecord{
				AgentID:     reviewerID,
				Kind:        bft.FaultSycophantic,
				Severity:    score,
				Description: "reviewer agreed with the unanimous/near-unanimous panel verdict with no independent dissent",
			}
			if reputation != nil {
				reputation.RecordFault(reviewerID, f)
			}
			d.Faults = append(d.Faults, f)
		}
		if !hasDevilsAdvocate(eligible) {
			d.Inconclusive = true
			d.Rationale = "sycophancy detected with no devil's-advocate reviewer; round marked inconclusive"
			return d
		}
	}

	d.Rationale = rationaleFor(verdict, mass, len(eligible), len(excluded))
	return d
}

func argmaxVerdict(mass map[Verdict]float64) Verdict {
	best := VerdictAbstain
	bestScore := mass[VerdictAbstain]
	order := []Verdict{VerdictApprove, VerdictReject}
	for _, v := range order {
		if mass[v] > bestScore {
			best = v
			bestScore = mass[v]
		}
	}
	// A tie between approve and reject (or either tying abstain) resolves to abstain.
	if mass[VerdictApprove] == mass[VerdictReject] && mass[VerdictApprove] > 0 {
		return VerdictAbstain
	}
	return best
}

func rationaleFor(verdict Verdict, mass map[Verdict]float64, eligibleCount, excludedCount int) string {
	var sb strings.Builder
	sb.WriteString(string(verdict))
	sb.WriteString(" from ")
	if eligibleCount == 1 {
		sb.WriteString("1 eligible vote")
	} else {
		sb.WriteString(strconv.Itoa(eligibleCount))
		sb.WriteString(" eligible votes")
	}
	if excludedCount > 0 {
		sb.WriteString(" (")
		sb.WriteString(strconv.Itoa(excludedCount))
		sb.WriteString(" excluded by reputation)")
	}
	return sb.String()
}
