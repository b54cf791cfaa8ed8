package council

import (
	"strings"
)

// sycophancyScore combines four signals into the weighted score described
// by the round's deliberation contract: verdict unanimity (0.3), Jaccard
// similarity of reasoning word-sets (0.3), issue-severity uniformity
// (weighted 0.2, contributed by issueSeverityWeighted), and issue-count
// uniformity (weighted 0.2, contributed by issueCountWeighted). The latter
// two signals pre-weight their own contribution rather than being scaled
// uniformly here, because each has a special-cased raw value for panels
// that raised no issues at all.
func sycophancyScore(votes []Vote) float64 {
	if len(votes) < 2 {
		return 0
	}
	total := 0.3*verdictUnanimity(votes) +
		0.3*meanPairwiseJaccard(votes) +
		issueSeverityWeighted(votes) +
		issueCountWeighted(votes)
	if total > 1 {
		return 1
	}
	if total < 0 {
		return 0
	}
	return total
}

func classify(score float64) SycophancyClass {
	switch {
	case score >= sycophancySevereThreshold:
		return SycophancySevere
	case score >= sycophancyModerateThreshold:
		return SycophancyModerate
	case score >= sycophancyMildThreshold:
		return SycophancyMild
	default:
		return SycophancyIndependent
	}
}

func verdictUnanimity(votes []Vote) float64 {
	counts := map[Verdict]int{}
	for _, v := range votes {
		counts[v.Verdict]++
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return float64(max) / float64(len(votes))
}

func meanPairwiseJaccard(votes []Vote) float64 {
	sets := make([]map[string]struct{}, len(votes))
	for i, v := range votes {
		sets[i] = reasoningWordSet(v.Reasoning)
	}
	var total float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func reasoningWordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// issueSeverityWeighted is signal 3 (weight 0.2): how uniform reviewers'
// issue severities are. When nobody raised any issue there is nothing to
// be uniform about, so this contributes 0 rather than the weighted
// maximum — a silent panel isn't scored as if it had agreed on severity.
func issueSeverityWeighted(votes []Vote) float64 {
	counts := map[IssueSeverity]int{}
	total := 0
	for _, v := range votes {
		for _, issue := range v.Issues {
			counts[issue.Severity]++
			total++
		}
	}
	if total == 0 {
		return 0
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return 0.2 * float64(max) / float64(total)
}

// issueCountWeighted is signal 4 (weight 0.2): how close reviewers' issue
// counts are to each other, measured as the count range relative to the
// mean count (not coefficient of variation). When every reviewer raised
// zero issues this contributes a flat 0.15 instead of full uniformity —
// a panel that found nothing at all is itself suspicious, not evidence of
// independent agreement.
func issueCountWeighted(votes []Vote) float64 {
	counts := make([]float64, len(votes))
	var sum, maxCount, minCount float64
	for i, v := range votes {
		counts[i] = float64(len(v.Issues))
		sum += counts[i]
		if i == 0 || counts[i] > maxCount {
			maxCount = counts[i]
		}
		if i == 0 || counts[i] < minCount {
			minCount = counts[i]
		}
	}
	if maxCount == 0 {
		return 0.15
	}
	mean := sum / float64(len(counts))
	denom := mean
	if denom < 1 {
		denom = 1
	}
	uniformity := 1.0 - (maxCount-minCount)/denom
	if uniformity < 0 {
		uniformity = 0
	}
	return 0.2 * uniformity
}

// agreeingReviewers returns the IDs of reviewers whose vote matches the
// panel's verdict — the set a bft.FaultSycophantic fault is raised against.
func agreeingReviewers(votes []Vote, verdict Verdict) []string {
	var ids []string
	for _, v := range votes {
		if v.Verdict == verdict {
			ids = append(ids, v.ReviewerID)
		}
	}
	return ids
}

// hasDevilsAdvocate reports whether at least one reviewer dissented from
// the majority verdict, standing in for an explicit devil's-advocate role.
func hasDevilsAdvocate(votes []Vote) bool {
	counts := map[Verdict]int{}
	for _, v := range votes {
		counts[v.Verdict]++
	}
	if len(counts) <= 1 {
		return false
	}
	return true
}
