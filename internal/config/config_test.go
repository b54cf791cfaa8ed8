package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "loki.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.TickInterval.Duration <= 0 {
		t.Error("expected default tick interval")
	}
	if cfg.Memory.DefaultNamespace != "default" {
		t.Errorf("expected default namespace, got %q", cfg.Memory.DefaultNamespace)
	}
	if cfg.BFT.MaxFaultsBeforeExclusion != 3 {
		t.Errorf("expected default max faults 3, got %d", cfg.BFT.MaxFaultsBeforeExclusion)
	}
	if cfg.Checklist.DefaultTimeout.Duration.Seconds() != 30 {
		t.Errorf("expected default checklist timeout 30s, got %v", cfg.Checklist.DefaultTimeout.Duration)
	}
	if cfg.Collaborator.Timeout.Duration.Minutes() != 5 {
		t.Errorf("expected default collaborator timeout 5m, got %v", cfg.Collaborator.Timeout.Duration)
	}
}

func TestLoadHonoursExplicitValues(t *testing.T) {
	path := writeConfig(t, `
[general]
tick_interval = "5s"
complexity_override = "enterprise"

[bft]
exclusion_threshold = 0.2
rehabilitation_threshold = 0.5
max_faults_before_exclusion = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.TickInterval.Duration.Seconds() != 5 {
		t.Errorf("expected 5s tick interval, got %v", cfg.General.TickInterval.Duration)
	}
	if cfg.General.ComplexityOverride != "enterprise" {
		t.Errorf("expected override enterprise, got %q", cfg.General.ComplexityOverride)
	}
	if cfg.BFT.MaxFaultsBeforeExclusion != 5 {
		t.Errorf("expected 5 max faults, got %d", cfg.BFT.MaxFaultsBeforeExclusion)
	}
}

func TestLoadRejectsInvalidComplexityOverride(t *testing.T) {
	path := writeConfig(t, `
[general]
complexity_override = "mythical"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for invalid complexity override")
	}
}

func TestLoadRejectsInvertedExclusionThresholds(t *testing.T) {
	path := writeConfig(t, `
[bft]
exclusion_threshold = 0.8
rehabilitation_threshold = 0.2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for inverted thresholds")
	}
}

func TestLoadRejectsSandboxWithoutImage(t *testing.T) {
	path := writeConfig(t, `
[checklist]
sandbox = true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for sandbox without image")
	}
}

func TestExpandHome(t *testing.T) {
	home := homeDir()
	got := ExpandHome("~/foo/bar")
	want := filepath.Join(home, "foo", "bar")
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
	if ExpandHome("/abs/path") != "/abs/path" {
		t.Error("absolute paths must be left untouched")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	path := writeConfig(t, `
[checklist]
exclude_dirs = ["a", "b"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	clone := cfg.Clone()
	clone.Checklist.ExcludeDirs[0] = "mutated"
	if cfg.Checklist.ExcludeDirs[0] == "mutated" {
		t.Fatal("clone shares backing array with original")
	}
}
