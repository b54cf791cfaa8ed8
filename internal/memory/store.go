package memory

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loki-swarm/core/internal/ids"
	"github.com/loki-swarm/core/internal/swarmio"
)

// Store is a namespace-scoped handle onto the on-disk memory layout rooted
// at Root. A Store with no namespace operates directly on Root; a
// namespaced store operates under Root/<namespace>.
type Store struct {
	root      string
	namespace string
}

// New returns a Store rooted at memoryRoot with no namespace.
func New(memoryRoot string) *Store {
	return &Store{root: memoryRoot}
}

// WithNamespace returns a Store scoped to the given namespace under the
// same root. An empty namespace is equivalent to the root store.
func (s *Store) WithNamespace(namespace string) *Store {
	return &Store{root: s.root, namespace: namespace}
}

func (s *Store) base() string {
	if s.namespace == "" {
		return s.root
	}
	return filepath.Join(s.root, s.namespace)
}

func (s *Store) resolve(rel string) (string, error) {
	return swarmio.ResolveUnder(s.base(), rel)
}

// Filter selects a subset of List results. A zero-value Filter matches
// everything for the given tier.
type Filter struct {
	Tier     Tier
	TaskType string
	Since    time.Time
}

// episodePath returns the relative path for an episode filed on day.
func episodePath(day time.Time, id string) string {
	return filepath.Join("episodic", day.UTC().Format("2006-01-02"), fmt.Sprintf("task-%s.json", id))
}

// SaveEpisode persists a new episode and returns its assigned ID.
func (s *Store) SaveEpisode(e Episode) (string, error) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Importance == 0 {
		e.Importance = computeInitialImportance(e)
	}
	e.Importance = clampImportance(e.Importance)
	if e.LastAccessed.IsZero() {
		e.LastAccessed = e.Timestamp
	}

	rel := episodePath(e.Timestamp, e.ID)
	path, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	err = swarmio.WithExclusiveLock(path, func() error {
		return swarmio.AtomicWriteJSON(path, e)
	})
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// LoadEpisode reads back an episode saved on the given day.
func (s *Store) LoadEpisode(day time.Time, id string) (Episode, bool, error) {
	rel := episodePath(day, id)
	path, err := s.resolve(rel)
	if err != nil {
		return Episode{}, false, err
	}
	var e Episode
	var ok bool
	err = swarmio.WithSharedLock(path, func() error {
		var rerr error
		ok, rerr = swarmio.ReadJSON(path, &e)
		return rerr
	})
	return e, ok, err
}

// ListEpisodes walks the episodic/ tree and returns every episode matching filter.
func (s *Store) ListEpisodes(filter Filter) ([]Episode, error) {
	root := filepath.Join(s.base(), "episodic")
	var out []Episode
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		var e Episode
		ok, rerr := swarmio.ReadJSON(path, &e)
		if rerr != nil || !ok {
			return nil
		}
		if filter.TaskType != "" && e.TaskType != filter.TaskType {
			return nil
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			return nil
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// patternsFile and antiPatternsFile hold upsertable single-document JSON
// arrays, rather than one file per record, matching the layout's
// semantic/patterns.json single-upsert-file contract.
const (
	patternsFile     = "semantic/patterns.json"
	antiPatternsFile = "semantic/anti-patterns.json"
)

// SavePattern upserts a pattern by ID into semantic/patterns.json.
func (s *Store) SavePattern(p Pattern) (string, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.LastUsed.IsZero() {
		p.LastUsed = time.Now().UTC()
	}
	path, err := s.resolve(patternsFile)
	if err != nil {
		return "", err
	}
	err = swarmio.WithExclusiveLock(path, func() error {
		var all []Pattern
		swarmio.ReadJSON(path, &all)
		replaced := false
		for i := range all {
			if all[i].ID == p.ID {
				all[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			all = append(all, p)
		}
		return swarmio.AtomicWriteJSON(path, all)
	})
	return p.ID, err
}

// ListPatterns returns all patterns currently on file.
func (s *Store) ListPatterns() ([]Pattern, error) {
	path, err := s.resolve(patternsFile)
	if err != nil {
		return nil, err
	}
	var all []Pattern
	err = swarmio.WithSharedLock(path, func() error {
		_, rerr := swarmio.ReadJSON(path, &all)
		return rerr
	})
	return all, err
}

// SaveAntiPattern upserts an anti-pattern by ID.
func (s *Store) SaveAntiPattern(a AntiPattern) (string, error) {
	if a.ID == "" {
		a.ID = ids.New()
	}
	path, err := s.resolve(antiPatternsFile)
	if err != nil {
		return "", err
	}
	err = swarmio.WithExclusiveLock(path, func() error {
		var all []AntiPattern
		swarmio.ReadJSON(path, &all)
		replaced := false
		for i := range all {
			if all[i].ID == a.ID {
				all[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			all = append(all, a)
		}
		return swarmio.AtomicWriteJSON(path, all)
	})
	return a.ID, err
}

// ListAntiPatterns returns all anti-patterns currently on file.
func (s *Store) ListAntiPatterns() ([]AntiPattern, error) {
	path, err := s.resolve(antiPatternsFile)
	if err != nil {
		return nil, err
	}
	var all []AntiPattern
	err = swarmio.WithSharedLock(path, func() error {
		_, rerr := swarmio.ReadJSON(path, &all)
		return rerr
	})
	return all, err
}

func skillPath(safeName string) string {
	return filepath.Join("skills", safeName+".json")
}

// SaveSkill persists a skill as skills/<safe-name>.json, plus a human-readable
// markdown mirror alongside it.
func (s *Store) SaveSkill(sk Skill) (string, error) {
	if sk.ID == "" {
		sk.ID = ids.New()
	}
	safe := ids.Safe(sk.Name)
	rel := skillPath(safe)
	path, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	err = swarmio.WithExclusiveLock(path, func() error {
		if werr := swarmio.AtomicWriteJSON(path, sk); werr != nil {
			return werr
		}
		mdPath := strings.TrimSuffix(path, ".json") + ".md"
		return os.WriteFile(mdPath, []byte(renderSkillMarkdown(sk)), 0o644)
	})
	return sk.ID, err
}

func renderSkillMarkdown(sk Skill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", sk.Name, sk.Description)
	if len(sk.Prerequisites) > 0 {
		b.WriteString("## Prerequisites\n")
		for _, p := range sk.Prerequisites {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Steps\n")
	for i, st := range sk.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, st)
	}
	if len(sk.KnownErrors) > 0 {
		b.WriteString("\n## Known errors\n")
		for _, ke := range sk.KnownErrors {
			fmt.Fprintf(&b, "- **%s**: %s\n", ke.Error, ke.Fix)
		}
	}
	if len(sk.ExitCriteria) > 0 {
		b.WriteString("\n## Exit criteria\n")
		for _, ec := range sk.ExitCriteria {
			fmt.Fprintf(&b, "- %s\n", ec)
		}
	}
	return b.String()
}

// LoadSkill reads back a skill by its safe name.
func (s *Store) LoadSkill(safeName string) (Skill, bool, error) {
	path, err := s.resolve(skillPath(safeName))
	if err != nil {
		return Skill{}, false, err
	}
	var sk Skill
	var ok bool
	err = swarmio.WithSharedLock(path, func() error {
		var rerr error
		ok, rerr = swarmio.ReadJSON(path, &sk)
		return rerr
	})
	return sk, ok, err
}

// ListSkills enumerates every skill under skills/.
func (s *Store) ListSkills() ([]Skill, error) {
	dir := filepath.Join(s.base(), "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var sk Skill
		ok, rerr := swarmio.ReadJSON(filepath.Join(dir, e.Name()), &sk)
		if rerr == nil && ok {
			out = append(out, sk)
		}
	}
	return out, nil
}

// Delete removes a single stored entity file by tier and identifying key
// (episode: "<YYYY-MM-DD>/<id>"; skills: safe name; patterns/anti-patterns:
// ID, removed from the shared upsert file).
func (s *Store) Delete(tier Tier, key string) error {
	switch tier {
	case TierEpisodic:
		parts := strings.SplitN(key, "/", 2)
		if len(parts) != 2 {
			return fmt.Errorf("memory: episodic delete key must be \"day/id\", got %q", key)
		}
		path, err := s.resolve(filepath.Join("episodic", parts[0], fmt.Sprintf("task-%s.json", parts[1])))
		if err != nil {
			return err
		}
		return swarmio.WithExclusiveLock(path, func() error {
			err := os.Remove(path)
			if os.IsNotExist(err) {
				return nil
			}
			return err
		})
	case TierSkills:
		path, err := s.resolve(skillPath(key))
		if err != nil {
			return err
		}
		return swarmio.WithExclusiveLock(path, func() error {
			os.Remove(strings.TrimSuffix(path, ".json") + ".md")
			err := os.Remove(path)
			if os.IsNotExist(err) {
				return nil
			}
			return err
		})
	case TierSemantic:
		return s.deleteFromUpsertFile(patternsFile, key)
	case TierAntiPattern:
		return s.deleteFromUpsertFile(antiPatternsFile, key)
	default:
		return fmt.Errorf("memory: unknown tier %q", tier)
	}
}

func (s *Store) deleteFromUpsertFile(rel, id string) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	return swarmio.WithExclusiveLock(path, func() error {
		var all []map[string]interface{}
		if _, rerr := swarmio.ReadJSON(path, &all); rerr != nil {
			return rerr
		}
		kept := all[:0]
		for _, rec := range all {
			if idv, _ := rec["id"].(string); idv != id {
				kept = append(kept, rec)
			}
		}
		return swarmio.AtomicWriteJSON(path, kept)
	})
}

// clampImportance enforces the [0.01, 1.0] invariant on every write.
func clampImportance(v float64) float64 {
	if math.IsNaN(v) {
		return 0.01
	}
	if v < 0.01 {
		return 0.01
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
