// Package retrieval implements task-aware scored retrieval over the
// memory store (C2): it blends episodic, semantic, skill and anti-pattern
// candidates into one ranked list, optionally disclosed progressively
// under a token budget, and optionally fanned out across namespaces.
package retrieval

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/vectorindex"
)

// ScoredItem is one ranked retrieval result, carrying enough to let a
// caller either show a summary or expand to the full entity.
type ScoredItem struct {
	ID              string      `json:"id"`
	Tier            memory.Tier `json:"tier"`
	Summary         string      `json:"summary"`
	Content         interface{} `json:"content,omitempty"`
	Score           float64     `json:"score"`
	EstimatedTokens int         `json:"estimated_tokens"`
	Namespace       string      `json:"_namespace,omitempty"`
}

// Metrics reports what a retrieval call actually did, for callers that
// want to log or budget against it.
type Metrics struct {
	CandidateCount  int `json:"candidate_count"`
	ReturnedCount   int `json:"returned_count"`
	TokensUsed      int `json:"tokens_used"`
	TokenBudget     int `json:"token_budget,omitempty"`
}

// Result is the output of RetrieveWithBudget.
type Result struct {
	Items    []ScoredItem `json:"items"`
	Metrics  Metrics      `json:"metrics"`
	TaskType TaskType     `json:"task_type"`
}

// Engine retrieves from one namespace's memory store, optionally backed by
// a vector index for embedding-based relevance.
type Engine struct {
	store   *memory.Store
	vectors *vectorindex.Index // nil: fall back to keyword overlap
	now     func() time.Time
}

// NewEngine builds a retrieval engine over store, optionally backed by a
// vector index. A nil index is valid; relevance then falls back to
// Jaccard keyword overlap.
func NewEngine(store *memory.Store, vectors *vectorindex.Index) *Engine {
	return &Engine{store: store, vectors: vectors, now: time.Now}
}

type candidate struct {
	id         string
	tier       memory.Tier
	text       string
	summary    string
	importance float64
	confidence float64
	timestamp  time.Time
	raw        interface{}
}

func (e *Engine) gatherCandidates(weights tierWeights) ([]candidate, error) {
	var out []candidate

	if weights.Episodic > 0 {
		episodes, err := e.store.ListEpisodes(memory.Filter{})
		if err != nil {
			return nil, fmt.Errorf("retrieval: list episodes: %w", err)
		}
		for _, ep := range episodes {
			conf := 1.0
			if ep.Confidence != nil {
				conf = *ep.Confidence
			}
			out = append(out, candidate{
				id: ep.ID, tier: memory.TierEpisodic,
				text:       ep.Goal,
				summary:    summarizeEpisode(ep),
				importance: ep.Importance, confidence: conf,
				timestamp: ep.Timestamp, raw: ep,
			})
		}
	}

	if weights.Semantic > 0 {
		patterns, err := e.store.ListPatterns()
		if err != nil {
			return nil, fmt.Errorf("retrieval: list patterns: %w", err)
		}
		for _, p := range patterns {
			out = append(out, candidate{
				id: p.ID, tier: memory.TierSemantic,
				text:       p.Text + " " + p.Category,
				summary:    summarizePattern(p),
				importance: defaultImportance, confidence: p.Confidence,
				timestamp: p.LastUsed, raw: p,
			})
		}
	}

	if weights.Skills > 0 {
		skills, err := e.store.ListSkills()
		if err != nil {
			return nil, fmt.Errorf("retrieval: list skills: %w", err)
		}
		for _, sk := range skills {
			out = append(out, candidate{
				id: sk.ID, tier: memory.TierSkills,
				text:       sk.Name + " " + sk.Description,
				summary:    summarizeSkill(sk),
				importance: defaultImportance, confidence: 1.0,
				raw: sk,
			})
		}
	}

	if weights.AntiPattern > 0 {
		antis, err := e.store.ListAntiPatterns()
		if err != nil {
			return nil, fmt.Errorf("retrieval: list anti-patterns: %w", err)
		}
		for _, a := range antis {
			out = append(out, candidate{
				id: a.ID, tier: memory.TierAntiPattern,
				text:       a.WhatFails + " " + a.Why,
				summary:    summarizeAntiPattern(a),
				importance: defaultImportance, confidence: 1.0,
				raw: a,
			})
		}
	}

	return out, nil
}

// defaultImportance is used for tiers (semantic/skills/anti-patterns) whose
// entities don't carry their own importance field; the tier weight and
// confidence already differentiate them.
const defaultImportance = 0.7

func summarizeEpisode(e memory.Episode) string {
	return fmt.Sprintf("[%s] %s -> %s", e.Phase, e.Goal, e.Outcome)
}

func summarizePattern(p memory.Pattern) string {
	return fmt.Sprintf("[%s] %s", p.Category, p.Text)
}

func summarizeSkill(sk memory.Skill) string {
	return fmt.Sprintf("%s: %s", sk.Name, sk.Description)
}

func summarizeAntiPattern(a memory.AntiPattern) string {
	return fmt.Sprintf("avoid: %s (%s)", a.WhatFails, a.Why)
}

// estimateTokens is a plain character-count heuristic (~4 chars/token),
// matching the rough sizing other components use for budget math.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func weightFor(w tierWeights, tier memory.Tier) float64 {
	switch tier {
	case memory.TierEpisodic:
		return w.Episodic
	case memory.TierSemantic:
		return w.Semantic
	case memory.TierSkills:
		return w.Skills
	case memory.TierAntiPattern:
		return w.AntiPattern
	default:
		return 0
	}
}

// scoreCandidates ranks candidates against ctx and an optional query
// embedding, returning them sorted by descending score.
func (e *Engine) scoreCandidates(cands []candidate, ctx Context, taskType TaskType, queryEmbedding []float32) []ScoredItem {
	weights := weightsFor(taskType)
	now := e.now()

	var embedScores map[string]float64
	if queryEmbedding != nil && e.vectors != nil {
		hits, err := e.vectors.Search(queryEmbedding, 0, nil)
		if err == nil {
			embedScores = make(map[string]float64, len(hits))
			for _, h := range hits {
				embedScores[h.ID] = h.Score
			}
		}
	}

	items := make([]ScoredItem, 0, len(cands))
	for _, c := range cands {
		var base float64
		if embedScores != nil {
			if s, ok := embedScores[c.id]; ok {
				base = s
			}
		} else {
			base = jaccardOverlap(ctx.Goal, c.text)
		}
		base += recencyBoost(c.timestamp, now)
		if base > 1.0 {
			base = 1.0
		}

		w := weightFor(weights, c.tier)
		score := itemScore(base, w, c.importance, c.confidence)

		items = append(items, ScoredItem{
			ID: c.id, Tier: c.tier, Summary: c.summary, Content: c.raw,
			Score:           score,
			EstimatedTokens: estimateTokens(c.summary) + estimateTokens(fmt.Sprintf("%v", c.raw)),
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items
}

// RetrieveTaskAware detects the task type from ctx and returns the topK
// highest-scoring items, optionally trimmed to fit tokenBudget by a greedy
// score/token knapsack.
func (e *Engine) RetrieveTaskAware(ctx Context, topK int, tokenBudget *int, queryEmbedding []float32) ([]ScoredItem, error) {
	taskType := DetectTaskType(ctx)
	cands, err := e.gatherCandidates(weightsFor(taskType))
	if err != nil {
		return nil, err
	}
	items := e.scoreCandidates(cands, ctx, taskType, queryEmbedding)

	if topK > 0 && topK < len(items) {
		items = items[:topK]
	}
	if tokenBudget != nil {
		items = knapsackByBudget(items, *tokenBudget)
	}
	return items, nil
}

// knapsackByBudget greedily fills budget tokens, taking items in
// descending score/token ratio order (items are already score-sorted, so
// this re-sorts by density before filling).
func knapsackByBudget(items []ScoredItem, budget int) []ScoredItem {
	ranked := append([]ScoredItem(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := density(ranked[i])
		dj := density(ranked[j])
		return di > dj
	})

	var out []ScoredItem
	used := 0
	for _, it := range ranked {
		if used+it.EstimatedTokens > budget {
			continue
		}
		out = append(out, it)
		used += it.EstimatedTokens
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func density(it ScoredItem) float64 {
	if it.EstimatedTokens <= 0 {
		return it.Score
	}
	return it.Score / float64(it.EstimatedTokens)
}

// RetrieveWithBudget implements progressive disclosure: layer 1 (topic
// index, <=20% of budget), layer 2 (one-line summaries, <=40%), layer 3
// (full items, remaining budget via greedy knapsack). When progressive is
// false, it behaves like RetrieveTaskAware bounded directly by budget.
func (e *Engine) RetrieveWithBudget(ctx Context, budget int, progressive bool, queryEmbedding []float32) (Result, error) {
	taskType := DetectTaskType(ctx)
	cands, err := e.gatherCandidates(weightsFor(taskType))
	if err != nil {
		return Result{}, err
	}
	ranked := e.scoreCandidates(cands, ctx, taskType, queryEmbedding)

	if !progressive {
		items := knapsackByBudget(ranked, budget)
		used := 0
		for _, it := range items {
			used += it.EstimatedTokens
		}
		return Result{
			Items:    items,
			TaskType: taskType,
			Metrics: Metrics{
				CandidateCount: len(cands), ReturnedCount: len(items),
				TokensUsed: used, TokenBudget: budget,
			},
		}, nil
	}

	layer1Budget := int(0.2 * float64(budget))
	layer2Budget := int(0.4 * float64(budget))
	layer3Budget := budget - layer1Budget - layer2Budget

	topicIndex := buildTopicIndex(ranked)
	indexItems, indexTokens := fitTopicIndex(topicIndex, layer1Budget)

	summaryItems, summaryTokens := fitSummaries(ranked, layer2Budget)

	fullItems := knapsackByBudget(ranked, layer3Budget)
	fullTokens := 0
	for _, it := range fullItems {
		fullTokens += it.EstimatedTokens
	}

	merged := mergeLayers(indexItems, summaryItems, fullItems)
	return Result{
		Items:    merged,
		TaskType: taskType,
		Metrics: Metrics{
			CandidateCount: len(cands), ReturnedCount: len(merged),
			TokensUsed: indexTokens + summaryTokens + fullTokens, TokenBudget: budget,
		},
	}, nil
}

// buildTopicIndex groups ranked items by tier, the coarsest "topic" this
// engine tracks.
func buildTopicIndex(items []ScoredItem) map[memory.Tier]int {
	counts := map[memory.Tier]int{}
	for _, it := range items {
		counts[it.Tier]++
	}
	return counts
}

func fitTopicIndex(topics map[memory.Tier]int, budget int) ([]ScoredItem, int) {
	var out []ScoredItem
	used := 0
	for tier, count := range topics {
		line := fmt.Sprintf("%s: %d items", tier, count)
		tok := estimateTokens(line)
		if used+tok > budget {
			continue
		}
		out = append(out, ScoredItem{Tier: tier, Summary: line, EstimatedTokens: tok})
		used += tok
	}
	return out, used
}

func fitSummaries(ranked []ScoredItem, budget int) ([]ScoredItem, int) {
	var out []ScoredItem
	used := 0
	for _, it := range ranked {
		tok := estimateTokens(it.Summary)
		if used+tok > budget {
			continue
		}
		out = append(out, ScoredItem{ID: it.ID, Tier: it.Tier, Summary: it.Summary, Score: it.Score, EstimatedTokens: tok})
		used += tok
	}
	return out, used
}

func mergeLayers(layers ...[]ScoredItem) []ScoredItem {
	var out []ScoredItem
	for _, l := range layers {
		out = append(out, l...)
	}
	return out
}

// RetrieveCrossNamespace fans a retrieval out across namespaces, applying
// a 0.9 multiplier to every item whose namespace differs from
// currentNamespace, then re-ranks and budgets the merged set. engines maps
// namespace -> an Engine scoped to that namespace's store.
func RetrieveCrossNamespace(ctx Context, currentNamespace string, engines map[string]*Engine, topK int, tokenBudget *int, queryEmbedding []float32) ([]ScoredItem, error) {
	taskType := DetectTaskType(ctx)

	var (
		mu     sync.Mutex
		merged []ScoredItem
	)
	g := new(errgroup.Group)
	for ns, eng := range engines {
		ns, eng := ns, eng
		g.Go(func() error {
			cands, err := eng.gatherCandidates(weightsFor(taskType))
			if err != nil {
				return fmt.Errorf("retrieval: namespace %q: %w", ns, err)
			}
			items := eng.scoreCandidates(cands, ctx, taskType, queryEmbedding)
			for i := range items {
				items[i].Namespace = ns
				if ns != currentNamespace {
					items[i].Score *= 0.9
				}
			}
			mu.Lock()
			merged = append(merged, items...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if topK > 0 && topK < len(merged) {
		merged = merged[:topK]
	}
	if tokenBudget != nil {
		merged = knapsackByBudget(merged, *tokenBudget)
	}
	return merged, nil
}
