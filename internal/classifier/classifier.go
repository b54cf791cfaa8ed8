// Package classifier maps PRD text to a complexity tier via an ordered
// set of keyword-hit rules (C4) — no ML, no external calls, a pure
// function of the text and an optional operator override.
package classifier

import (
	"math"
	"strings"
)

// Tier is a recommended complexity/team-size bracket for a PRD.
type Tier string

const (
	TierSimple     Tier = "simple"
	TierStandard   Tier = "standard"
	TierComplex    Tier = "complex"
	TierEnterprise Tier = "enterprise"
)

// Category is one of the seven feature dimensions scanned for keyword hits.
type Category string

const (
	CategoryServiceCount         Category = "service_count"
	CategoryExternalAPIs         Category = "external_apis"
	CategoryDatabaseComplexity   Category = "database_complexity"
	CategoryDeploymentComplexity Category = "deployment_complexity"
	CategoryTestingRequirements  Category = "testing_requirements"
	CategoryUIComplexity         Category = "ui_complexity"
	CategoryAuthComplexity       Category = "auth_complexity"
)

var allCategories = []Category{
	CategoryServiceCount, CategoryExternalAPIs, CategoryDatabaseComplexity,
	CategoryDeploymentComplexity, CategoryTestingRequirements, CategoryUIComplexity,
	CategoryAuthComplexity,
}

// categoryKeywords lists the distinct keywords that count as a hit for
// each category. Hits are counted per unique keyword matched, not per
// occurrence, so repeating a keyword doesn't inflate the score.
var categoryKeywords = map[Category][]string{
	CategoryServiceCount: {
		"microservice", "microservices", "service mesh", "multiple services",
		"separate service", "backend service", "worker service", "queue consumer",
	},
	CategoryExternalAPIs: {
		"third-party api", "external api", "webhook", "integration", "payment gateway",
		"stripe", "twilio", "oauth provider", "external service",
	},
	CategoryDatabaseComplexity: {
		"database", "sql", "postgres", "mysql", "sharding", "replication",
		"migration", "schema", "data warehouse", "multi-region database",
	},
	CategoryDeploymentComplexity: {
		"kubernetes", "docker", "ci/cd", "blue-green", "canary deploy",
		"multi-region", "autoscaling", "infrastructure as code", "terraform",
	},
	CategoryTestingRequirements: {
		"unit test", "integration test", "end-to-end test", "load test",
		"test coverage", "regression test", "chaos test", "penetration test",
	},
	CategoryUIComplexity: {
		"dashboard", "responsive", "accessibility", "real-time ui", "drag and drop",
		"data visualization", "multi-step form", "white-label",
	},
	CategoryAuthComplexity: {
		"sso", "role-based access", "rbac", "multi-factor", "mfa", "oauth",
		"saml", "fine-grained permissions",
	},
}

// enterpriseKeywords force the enterprise tier regardless of total hits,
// because they describe organisational constraints no team-size heuristic
// should second-guess.
var enterpriseKeywords = []string{
	"multi-tenant", "sla", "high availability", "disaster recovery",
	"audit log", "compliance", "soc 2", "hipaa", "gdpr", "enterprise-grade",
}

var agentCountByTier = map[Tier]int{
	TierSimple:     3,
	TierStandard:   6,
	TierComplex:    8,
	TierEnterprise: 12,
}

// Classification is the output of Classify.
type Classification struct {
	Tier       Tier             `json:"tier"`
	Confidence float64          `json:"confidence"`
	Features   map[Category]int `json:"features"`
	AgentCount int              `json:"agent_count"`
	Override   bool             `json:"override"`
}

// Classify scores prdText against the category keyword tables and returns
// a tier, confidence and recommended team size. If override is non-empty
// and names a valid tier, it wins outright with confidence 1.0.
func Classify(prdText string, override string) Classification {
	lower := strings.ToLower(prdText)

	features := make(map[Category]int, len(allCategories))
	total := 0
	activeCategories := 0
	for _, cat := range allCategories {
		hits := countUniqueHits(lower, categoryKeywords[cat])
		features[cat] = hits
		total += hits
		if hits > 0 {
			activeCategories++
		}
	}

	if override != "" {
		if t := Tier(override); isValidTier(t) {
			return Classification{
				Tier: t, Confidence: 1.0, Features: features,
				AgentCount: agentCountByTier[t], Override: true,
			}
		}
	}

	hasEnterpriseKeyword := countUniqueHits(lower, enterpriseKeywords) > 0

	var tier Tier
	switch {
	case hasEnterpriseKeyword || total > 25:
		tier = TierEnterprise
	case total >= 16 || (total >= 12 && activeCategories >= 4):
		tier = TierComplex
	case total >= 6 || activeCategories >= 3:
		tier = TierStandard
	default:
		tier = TierSimple
	}

	confidence := confidenceFor(total, activeCategories)

	return Classification{
		Tier: tier, Confidence: confidence, Features: features,
		AgentCount: agentCountByTier[tier], Override: false,
	}
}

// countUniqueHits counts how many distinct keywords from the list appear
// in text at least once.
func countUniqueHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

// confidenceFor implements min(0.95, 0.5 + 0.05*min_distance_to_boundary),
// boosted by 0.05 when >=5 categories are active, capped at 0.7 when
// total hits <= 2. Distances are measured from the tier-boundary
// midpoints (5.5, 15.5, 25.5), not the integer boundaries themselves, and
// the result is rounded to 2 decimal places.
func confidenceFor(total, activeCategories int) float64 {
	boundaryMidpoints := []float64{5.5, 15.5, 25.5}
	minDistance := math.Abs(float64(total) - boundaryMidpoints[0])
	for _, b := range boundaryMidpoints[1:] {
		if d := math.Abs(float64(total) - b); d < minDistance {
			minDistance = d
		}
	}

	confidence := 0.5 + 0.05*minDistance
	if confidence > 0.95 {
		confidence = 0.95
	}
	if activeCategories >= 5 {
		confidence = math.Min(0.95, confidence+0.05)
	}
	if total <= 2 {
		confidence = math.Min(confidence, 0.7)
	}
	return math.Round(confidence*100) / 100
}

func isValidTier(t Tier) bool {
	switch t {
	case TierSimple, TierStandard, TierComplex, TierEnterprise:
		return true
	default:
		return false
	}
}
