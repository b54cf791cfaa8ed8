// Package perftrack maintains rolling per-agent-type quality and duration
// statistics (C9), feeding the composer's team assembly and the
// orchestrator's mid-run adjustments. All agent types start equal; scores
// are learned purely from recorded completions.
package perftrack

import (
	"time"

	"github.com/loki-swarm/core/internal/swarmio"
)

const ringBufferSize = 20

// Stat is the rolling performance record for one agent type.
type Stat struct {
	AgentType     string    `json:"agent_type"`
	TotalTasks    int       `json:"total_tasks"`
	AvgQuality    float64   `json:"avg_quality"`    // running mean, clamped [0,1]
	AvgDurationS  float64   `json:"avg_duration_s"`
	QualityRing   []float64 `json:"quality_ring"`   // last ringBufferSize quality scores, oldest first
	LastUpdated   time.Time `json:"last_updated"`
}

// Tracker holds one Stat per agent type and persists to a single JSON
// file, matching the atomic-write discipline every persistent component
// uses.
type Tracker struct {
	path  string
	stats map[string]*Stat
}

// Open loads a tracker from path if present, or starts empty.
func Open(path string) (*Tracker, error) {
	t := &Tracker{path: path, stats: map[string]*Stat{}}
	var list []Stat
	ok, err := swarmio.ReadJSON(path, &list)
	if err != nil {
		return nil, err
	}
	if ok {
		for i := range list {
			s := list[i]
			t.stats[s.AgentType] = &s
		}
	}
	return t, nil
}

// RecordCompletion folds one completed task's quality (clamped [0,1]) and
// duration into the running stats for agentType.
func (t *Tracker) RecordCompletion(agentType string, quality, durationS float64) {
	quality = clamp01(quality)

	s, ok := t.stats[agentType]
	if !ok {
		s = &Stat{AgentType: agentType}
		t.stats[agentType] = s
	}

	n := float64(s.TotalTasks)
	s.AvgQuality = clamp01((s.AvgQuality*n + quality) / (n + 1))
	s.AvgDurationS = (s.AvgDurationS*n + durationS) / (n + 1)
	s.TotalTasks++
	s.LastUpdated = time.Now().UTC()

	s.QualityRing = append(s.QualityRing, quality)
	if len(s.QualityRing) > ringBufferSize {
		s.QualityRing = s.QualityRing[len(s.QualityRing)-ringBufferSize:]
	}
}

// Get returns a copy of the stat for agentType, or the neutral zero value
// (avg_quality 0.5) if it has never recorded a completion.
func (t *Tracker) Get(agentType string) Stat {
	if s, ok := t.stats[agentType]; ok {
		return *s
	}
	return Stat{AgentType: agentType, AvgQuality: 0.5}
}

// Save persists every tracked stat to disk atomically.
func (t *Tracker) Save() error {
	list := make([]Stat, 0, len(t.stats))
	for _, s := range t.stats {
		list = append(list, *s)
	}
	return swarmio.WithExclusiveLock(t.path, func() error {
		return swarmio.AtomicWriteJSON(t.path, list)
	})
}

// Ranked is one candidate's recommendation score.
type Ranked struct {
	AgentType string  `json:"agent_type"`
	Score     float64 `json:"score"`
}

// Recommend ranks candidates by avg_quality + 0.1*trend, where trend
// compares the newer half of the quality ring to the older half, clamped
// to [-1,1]. Candidates never recorded get the neutral score 0.5.
func (t *Tracker) Recommend(candidates []string, topN int) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		s, ok := t.stats[c]
		if !ok {
			ranked = append(ranked, Ranked{AgentType: c, Score: 0.5})
			continue
		}
		trend := clampTrend(trendOf(s.QualityRing))
		ranked = append(ranked, Ranked{AgentType: c, Score: s.AvgQuality + 0.1*trend})
	}

	sortDescending(ranked)
	if topN > 0 && topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}

// trendOf compares the mean of the newer half of the ring to the mean of
// the older half. Fewer than 2 samples yields 0 (no trend signal yet).
func trendOf(ring []float64) float64 {
	n := len(ring)
	if n < 2 {
		return 0
	}
	mid := n / 2
	older := mean(ring[:mid])
	newer := mean(ring[mid:])
	return newer - older
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampTrend(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortDescending(ranked []Ranked) {
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score > ranked[j-1].Score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
}
