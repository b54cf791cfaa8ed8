package retrieval

import (
	"strings"
	"time"
)

// normalizeForMatch lowercases a free-text field for substring keyword
// matching; whitespace is left as it is.
func normalizeForMatch(s string) string {
	return strings.ToLower(s)
}

func containsWord(haystack, word string) bool {
	return strings.Contains(haystack, strings.ToLower(word))
}

// jaccardOverlap scores the token-set overlap between a query and a
// document, used as the base relevance signal when no embedding exists.
func jaccardOverlap(query, doc string) float64 {
	qSet := tokenSet(query)
	dSet := tokenSet(doc)
	if len(qSet) == 0 || len(dSet) == 0 {
		return 0
	}
	intersection := 0
	for t := range qSet {
		if dSet[t] {
			intersection++
		}
	}
	union := len(qSet)
	for t := range dSet {
		if !qSet[t] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(normalizeForMatch(s))
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if f != "" {
			out[f] = true
		}
	}
	return out
}

// recencyBoost adds up to 10% linearly for items at most 30 days old,
// tapering to 0 beyond that.
func recencyBoost(t time.Time, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	days := now.Sub(t).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days >= 30 {
		return 0
	}
	return 0.1 * (1 - days/30)
}

// itemScore blends base relevance, the task-type tier weight, an
// importance-scaled multiplier, and confidence into the final per-item
// score: base_relevance * task_weight * (0.7 + 0.3*importance) * confidence.
func itemScore(baseRelevance, taskWeight, importance, confidence float64) float64 {
	return baseRelevance * taskWeight * (0.7 + 0.3*importance) * confidence
}
