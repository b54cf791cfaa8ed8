package memory

import (
	"os"

	"github.com/loki-swarm/core/internal/swarmio"
)

// ListNamespaces enumerates the immediate child directories of the memory
// root, each of which is a namespace. Inheritance/resolution across
// namespaces is the retrieval engine's responsibility, not the store's.
func (s *Store) ListNamespaces() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Stats summarizes the entity counts held by a namespace.
type Stats struct {
	Namespace        string `json:"namespace"`
	EpisodeCount     int    `json:"episode_count"`
	PatternCount     int    `json:"pattern_count"`
	AntiPatternCount int    `json:"anti_pattern_count"`
	SkillCount       int    `json:"skill_count"`
}

// Stats computes entity counts for this store's namespace.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Namespace: s.namespace}

	episodes, err := s.ListEpisodes(Filter{})
	if err != nil {
		return st, err
	}
	st.EpisodeCount = len(episodes)

	patterns, err := s.ListPatterns()
	if err != nil {
		return st, err
	}
	st.PatternCount = len(patterns)

	antiPatterns, err := s.ListAntiPatterns()
	if err != nil {
		return st, err
	}
	st.AntiPatternCount = len(antiPatterns)

	skills, err := s.ListSkills()
	if err != nil {
		return st, err
	}
	st.SkillCount = len(skills)

	return st, nil
}

// CopyTo duplicates every entity in this namespace into dst, preserving
// IDs, overwriting any existing entity with the same identity in dst.
func (s *Store) CopyTo(dst *Store) error {
	episodes, err := s.ListEpisodes(Filter{})
	if err != nil {
		return err
	}
	for _, e := range episodes {
		rel := episodePath(e.Timestamp, e.ID)
		path, err := dst.resolve(rel)
		if err != nil {
			return err
		}
		if err := writeEpisode(path, e); err != nil {
			return err
		}
	}

	patterns, err := s.ListPatterns()
	if err != nil {
		return err
	}
	for _, p := range patterns {
		if _, err := dst.SavePattern(p); err != nil {
			return err
		}
	}

	antiPatterns, err := s.ListAntiPatterns()
	if err != nil {
		return err
	}
	for _, a := range antiPatterns {
		if _, err := dst.SaveAntiPattern(a); err != nil {
			return err
		}
	}

	skills, err := s.ListSkills()
	if err != nil {
		return err
	}
	for _, sk := range skills {
		if _, err := dst.SaveSkill(sk); err != nil {
			return err
		}
	}
	return nil
}

// MergeFrom pulls every entity from src into this namespace. When dedupByID
// is true, episodes and patterns whose ID already exists in the destination
// are skipped rather than overwritten; otherwise src wins. Anti-patterns and
// skills are always written, replacing a same-ID anti-pattern or a
// same-name skill, whatever dedupByID says.
func (s *Store) MergeFrom(src *Store, dedupByID bool) error {
	if dedupByID {
		existing := map[string]bool{}
		if episodes, err := s.ListEpisodes(Filter{}); err == nil {
			for _, e := range episodes {
				existing[e.ID] = true
			}
		}
		episodes, err := src.ListEpisodes(Filter{})
		if err != nil {
			return err
		}
		for _, e := range episodes {
			if existing[e.ID] {
				continue
			}
			rel := episodePath(e.Timestamp, e.ID)
			path, err := s.resolve(rel)
			if err != nil {
				return err
			}
			if err := writeEpisode(path, e); err != nil {
				return err
			}
		}
	} else {
		episodes, err := src.ListEpisodes(Filter{})
		if err != nil {
			return err
		}
		for _, e := range episodes {
			rel := episodePath(e.Timestamp, e.ID)
			path, err := s.resolve(rel)
			if err != nil {
				return err
			}
			if err := writeEpisode(path, e); err != nil {
				return err
			}
		}
	}

	patterns, err := src.ListPatterns()
	if err != nil {
		return err
	}
	for _, p := range patterns {
		if dedupByID {
			if existing, _, eerr := s.hasPattern(p.ID); eerr == nil && existing {
				continue
			}
		}
		if _, err := s.SavePattern(p); err != nil {
			return err
		}
	}

	antiPatterns, err := src.ListAntiPatterns()
	if err != nil {
		return err
	}
	for _, a := range antiPatterns {
		if _, err := s.SaveAntiPattern(a); err != nil {
			return err
		}
	}

	skills, err := src.ListSkills()
	if err != nil {
		return err
	}
	for _, sk := range skills {
		if _, err := s.SaveSkill(sk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) hasPattern(id string) (bool, Pattern, error) {
	all, err := s.ListPatterns()
	if err != nil {
		return false, Pattern{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return true, p, nil
		}
	}
	return false, Pattern{}, nil
}

func writeEpisode(path string, e Episode) error {
	return swarmio.WithExclusiveLock(path, func() error {
		return swarmio.AtomicWriteJSON(path, e)
	})
}
