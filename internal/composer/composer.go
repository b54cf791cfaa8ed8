// Package composer turns a classification, optional organisational
// patterns, and C9 performance history into an ordered, priority-tagged
// team of agent roles (C5).
package composer

import (
	"sort"
	"strings"

	"github.com/loki-swarm/core/internal/classifier"
	"github.com/loki-swarm/core/internal/perftrack"
)

// Source identifies why an agent was added to the team.
type Source string

const (
	SourceBase        Source = "base"
	SourceFeature     Source = "feature"
	SourceEnterprise  Source = "enterprise"
	SourceOrgKnowledge Source = "org_knowledge"
)

// Agent is one role slot in a composed team.
type Agent struct {
	Type     string `json:"type"`
	Role     string `json:"role"`
	Priority int    `json:"priority"` // 1 = critical
	Source   Source `json:"source"`
}

// Composition is the result of Compose.
type Composition struct {
	Agents    []Agent  `json:"agents"`
	Rationale []string `json:"rationale"`
	Source    Source   `json:"source"`
}

// specialistByCategory maps each classifier feature category to the
// specialist agent type it justifies adding.
var specialistByCategory = map[classifier.Category]Agent{
	classifier.CategoryServiceCount:         {Type: "platform-engineer", Role: "service architecture"},
	classifier.CategoryExternalAPIs:         {Type: "integration-engineer", Role: "third-party integrations"},
	classifier.CategoryDatabaseComplexity:   {Type: "database-engineer", Role: "schema and data design"},
	classifier.CategoryDeploymentComplexity: {Type: "devops-engineer", Role: "deployment and infrastructure"},
	classifier.CategoryTestingRequirements:  {Type: "qa-engineer", Role: "test strategy and coverage"},
	classifier.CategoryUIComplexity:         {Type: "frontend-engineer", Role: "UI implementation"},
	classifier.CategoryAuthComplexity:       {Type: "security-engineer", Role: "authn/authz design"},
}

// orgKeywordSpecialists maps free-text technology tokens, as they'd appear
// in an organisational pattern's text, to the specialist they justify.
var orgKeywordSpecialists = map[string]Agent{
	"react":            {Type: "frontend-engineer", Role: "UI implementation"},
	"vue":              {Type: "frontend-engineer", Role: "UI implementation"},
	"svelte":           {Type: "frontend-engineer", Role: "UI implementation"},
	"angular":          {Type: "frontend-engineer", Role: "UI implementation"},
	"next.js":          {Type: "frontend-engineer", Role: "UI implementation"},
	"nuxt":             {Type: "frontend-engineer", Role: "UI implementation"},
	"postgres":         {Type: "database-engineer", Role: "schema and data design"},
	"postgresql":       {Type: "database-engineer", Role: "schema and data design"},
	"mongodb":          {Type: "database-engineer", Role: "schema and data design"},
	"redis":            {Type: "database-engineer", Role: "schema and data design"},
	"mysql":            {Type: "database-engineer", Role: "schema and data design"},
	"docker":           {Type: "devops-engineer", Role: "deployment and infrastructure"},
	"kubernetes":       {Type: "devops-engineer", Role: "deployment and infrastructure"},
	"terraform":        {Type: "devops-engineer", Role: "deployment and infrastructure"},
	"playwright":       {Type: "qa-engineer", Role: "test strategy and coverage"},
	"cypress":          {Type: "qa-engineer", Role: "test strategy and coverage"},
	"jest":             {Type: "qa-engineer", Role: "test strategy and coverage"},
	"stripe":           {Type: "integration-engineer", Role: "third-party integrations"},
	"graphql":          {Type: "integration-engineer", Role: "third-party integrations"},
	"rest api":         {Type: "integration-engineer", Role: "third-party integrations"},
	"oauth":            {Type: "security-engineer", Role: "authn/authz design"},
	"react-native":     {Type: "mobile-engineer", Role: "mobile implementation"},
	"flutter":          {Type: "mobile-engineer", Role: "mobile implementation"},
	"swift":            {Type: "mobile-engineer", Role: "mobile implementation"},
	"kotlin":           {Type: "mobile-engineer", Role: "mobile implementation"},
	"machine learning": {Type: "ml-engineer", Role: "model development and training"},
	"analytics":        {Type: "analytics-engineer", Role: "metrics and reporting"},
}

var enterpriseAdditions = []Agent{
	{Type: "sre", Role: "reliability and on-call readiness", Priority: 3},
	{Type: "compliance-engineer", Role: "regulatory and audit requirements", Priority: 3},
	{Type: "analytics-engineer", Role: "metrics and reporting", Priority: 3},
}

var baseTeam = []Agent{
	{Type: "planner", Role: "task breakdown and sequencing", Priority: 1},
	{Type: "backend-engineer", Role: "core implementation", Priority: 1},
	{Type: "code-reviewer", Role: "code review and quality gates", Priority: 1},
}

// Compose assembles a team from classification and, optionally, a set of
// organisational pattern texts and a performance tracker used to reorder
// same-priority specialists.
func Compose(c classifier.Classification, orgPatternTexts []string, perf *perftrack.Tracker) Composition {
	var rationale []string
	source := SourceBase

	agents := map[string]Agent{}
	order := []string{}
	add := func(a Agent) {
		if _, exists := agents[a.Type]; exists {
			return
		}
		agents[a.Type] = a
		order = append(order, a.Type)
	}

	for _, a := range baseTeam {
		a.Source = SourceBase
		add(a)
	}
	rationale = append(rationale, "base team: planner, backend engineer, code reviewer")

	for _, cat := range sortedCategories(c.Features) {
		if c.Features[cat] == 0 {
			continue
		}
		spec, ok := specialistByCategory[cat]
		if !ok {
			continue
		}
		if _, exists := agents[spec.Type]; exists {
			continue
		}
		spec.Priority = 2
		spec.Source = SourceFeature
		add(spec)
		rationale = append(rationale, "added "+spec.Type+" for "+string(cat))
	}

	if c.Tier == classifier.TierEnterprise {
		for _, a := range enterpriseAdditions {
			a.Source = SourceEnterprise
			add(a)
		}
		rationale = append(rationale, "enterprise tier: added SRE, compliance, and analytics")
	}

	for _, text := range orgPatternTexts {
		lower := strings.ToLower(text)
		for token, spec := range orgKeywordSpecialists {
			if !strings.Contains(lower, token) {
				continue
			}
			if _, exists := agents[spec.Type]; exists {
				continue
			}
			spec.Priority = 2
			spec.Source = SourceOrgKnowledge
			add(spec)
			source = SourceOrgKnowledge
			rationale = append(rationale, "added "+spec.Type+" from organisational pattern mentioning "+token)
		}
	}

	list := make([]Agent, 0, len(order))
	for _, t := range order {
		list = append(list, agents[t])
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		if perf == nil {
			return false
		}
		return perf.Get(list[i].Type).AvgQuality > perf.Get(list[j].Type).AvgQuality
	})

	if c.AgentCount > 0 && c.AgentCount < len(list) {
		list = list[:c.AgentCount]
	}

	return Composition{Agents: list, Rationale: rationale, Source: source}
}

func sortedCategories(features map[classifier.Category]int) []classifier.Category {
	cats := make([]classifier.Category, 0, len(features))
	for c := range features {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}
