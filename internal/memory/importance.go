package memory

import (
	"math"
	"time"

	"github.com/loki-swarm/core/internal/swarmio"
)

// computeInitialImportance scores a freshly saved episode from its outcome,
// error-resolution record, and task-type match, per the importance
// algorithm: start at 0.5, blend in confidence if present, add outcome,
// resolved-error and access-count bonuses, then clamp to [0.01, 1.0].
func computeInitialImportance(e Episode) float64 {
	base := 0.5
	if e.Confidence != nil {
		base = (base + *e.Confidence) / 2
	}

	switch e.Outcome {
	case OutcomeSuccess:
		base += 0.1
	case OutcomeFailure:
		base -= 0.1
	}

	if e.ResolvedErrorCount > 0 {
		bonus := 0.05 * float64(e.ResolvedErrorCount)
		if bonus > 0.15 {
			bonus = 0.15
		}
		base += bonus
	}

	base += accessBoost(e.AccessCount)

	if e.TaskType != "" && e.Phase != "" && taskTypeMatchesPhase(e.TaskType, e.Phase) {
		base += 0.1
	}

	return clampImportance(base)
}

// taskTypeMatchesPhase reports whether phase names the same task type
// (an "exploration" episode filed under the "exploration" phase, and so
// on); only exact string equality counts as a match.
func taskTypeMatchesPhase(taskType, phase string) bool {
	return taskType == phase
}

// accessBoost returns the log-scaled access-count bonus
// 0.05*ln(1+accessCount) that computeInitialImportance adds, capped at 0.15.
func accessBoost(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	b := 0.05 * math.Log(1+float64(accessCount))
	if b > 0.15 {
		b = 0.15
	}
	return b
}

// applyDecay implements current * exp(-decay_rate * days_since / half_life),
// floored at 0.01.
func applyDecay(current, decayRate, halfLifeDays, daysSinceAccess float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = 1
	}
	next := current * math.Exp(-decayRate*daysSinceAccess/halfLifeDays)
	return clampImportance(next)
}

// BatchApplyDecay walks every episode under the store and applies the decay
// formula relative to now, writing back only entries whose importance
// changed. It returns the number of entities touched.
func (s *Store) BatchApplyDecay(decayRate, halfLifeDays float64, now time.Time) (int, error) {
	episodes, err := s.ListEpisodes(Filter{})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range episodes {
		days := now.Sub(e.LastAccessed).Hours() / 24
		if days <= 0 {
			continue
		}
		next := applyDecay(e.Importance, decayRate, halfLifeDays, days)
		if next == e.Importance {
			continue
		}
		e.Importance = next
		rel := episodePath(e.Timestamp, e.ID)
		path, rerr := s.resolve(rel)
		if rerr != nil {
			return count, rerr
		}
		werr := swarmio.WithExclusiveLock(path, func() error {
			return swarmio.AtomicWriteJSON(path, e)
		})
		if werr != nil {
			return count, werr
		}
		count++
	}
	return count, nil
}

// BoostOnRetrieval applies boost*(1-current) to an episode's importance and
// bumps its access count and last-accessed time, in memory only;
// SaveBoostedEpisode writes the result to disk.
func (s *Store) BoostOnRetrieval(e *Episode, boost float64) {
	e.Importance = clampImportance(e.Importance + boost*(1-e.Importance))
	e.AccessCount++
	e.LastAccessed = time.Now().UTC()
}

// SaveBoostedEpisode re-persists an episode after BoostOnRetrieval, writing
// to the file it was originally filed under.
func (s *Store) SaveBoostedEpisode(e Episode) error {
	rel := episodePath(e.Timestamp, e.ID)
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	return swarmio.WithExclusiveLock(path, func() error {
		return swarmio.AtomicWriteJSON(path, e)
	})
}
