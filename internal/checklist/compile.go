package checklist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loki-swarm/core/internal/swarmio"
)

// sourceYAML is the human-authored shape of checklist.yaml: flatter than
// the machine-owned Checklist, with no status/verified_at bookkeeping
// fields for an author to accidentally desync from reality.
type sourceYAML struct {
	Items []sourceItemYAML `yaml:"items"`
}

type sourceItemYAML struct {
	ID           string                 `yaml:"id"`
	Title        string                 `yaml:"title"`
	Priority     string                 `yaml:"priority"`
	Verification []sourceVerifyYAML     `yaml:"verification"`
}

type sourceVerifyYAML struct {
	Type           string   `yaml:"type"`
	Path           string   `yaml:"path,omitempty"`
	Pattern        string   `yaml:"pattern,omitempty"`
	Cmd            []string `yaml:"cmd,omitempty"`
	ExpectedStatus int      `yaml:"expected_status,omitempty"`
}

// CompileYAML reads a human-authored checklist.yaml from yamlPath and
// atomically writes the machine-owned checklist.json to jsonPath, seeding
// every item as StatusPending. Compiling is idempotent and never touches
// verification history already recorded under a prior id.
func CompileYAML(yamlPath, jsonPath string) (Checklist, error) {
	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		return Checklist{}, fmt.Errorf("checklist: read %s: %w", yamlPath, err)
	}

	var src sourceYAML
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return Checklist{}, fmt.Errorf("checklist: parse %s: %w", yamlPath, err)
	}

	cl := Checklist{Items: make([]Item, 0, len(src.Items))}
	seen := make(map[string]bool, len(src.Items))
	for _, si := range src.Items {
		if si.ID == "" {
			return Checklist{}, fmt.Errorf("checklist: item %q missing id", si.Title)
		}
		if seen[si.ID] {
			return Checklist{}, fmt.Errorf("checklist: duplicate item id %q", si.ID)
		}
		seen[si.ID] = true

		priority := Priority(si.Priority)
		if priority != PriorityMajor && priority != PriorityMinor {
			priority = PriorityMajor
		}

		verifications := make([]Verification, 0, len(si.Verification))
		for _, sv := range si.Verification {
			verifications = append(verifications, Verification{
				Type:           CheckKind(sv.Type),
				Path:           sv.Path,
				Pattern:        sv.Pattern,
				Cmd:            sv.Cmd,
				ExpectedStatus: sv.ExpectedStatus,
			})
		}

		cl.Items = append(cl.Items, Item{
			ID:           si.ID,
			Title:        si.Title,
			Priority:     priority,
			Verification: verifications,
			Status:       StatusPending,
		})
	}

	if err := swarmio.AtomicWriteJSON(jsonPath, cl); err != nil {
		return Checklist{}, fmt.Errorf("checklist: write %s: %w", jsonPath, err)
	}
	return cl, nil
}
