// Command lokictl is the operator's inspection and maintenance surface
// for a loki-swarm project: reading live session state, forcing a memory
// decay sweep, and compiling/replaying the checklist — everything that
// would otherwise be a quick-command flag on the daemon, as its own small
// binary instead, since lokicore's CLI surface stays a single `run` verb.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loki-swarm/core/internal/checklist"
	"github.com/loki-swarm/core/internal/config"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/orchestrator"
)

func main() {
	configPath := ".loki/loki.toml"
	var args []string
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
			i++
			continue
		}
		args = append(args, os.Args[i])
	}
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		// Every subcommand takes its paths from the config, so a config
		// file that cannot be loaded is fatal.
		fmt.Fprintf(os.Stderr, "lokictl: failed to load config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	switch args[0] {
	case "status":
		runStatus(cfg)
	case "namespaces":
		runNamespaces(cfg)
	case "decay-sweep":
		runDecaySweep(cfg, logger)
	case "checklist":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		runChecklist(cfg, args[1], args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: lokictl [--config path] <command>

commands:
  status                    print the running session's dashboard state
  namespaces                list memory namespaces and their entity counts
  decay-sweep               apply importance decay across every namespace
  checklist verify          run every checklist item's verification checks
  checklist compile         compile checklist.yaml into checklist.json`)
}

func runStatus(cfg *config.Config) {
	projectRoot := cfg.General.ProjectRoot
	if projectRoot == "" {
		projectRoot, _ = os.Getwd()
	}
	path := projectRoot + "/.loki/dashboard-state.json"
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lokictl: no dashboard state at %s (is lokicore running?): %v\n", path, err)
		os.Exit(1)
	}
	var state orchestrator.DashboardState
	if err := json.Unmarshal(raw, &state); err != nil {
		fmt.Fprintf(os.Stderr, "lokictl: malformed dashboard state: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(state)
}

func runNamespaces(cfg *config.Config) {
	root := memory.New(cfg.Memory.Root)
	namespaces, err := root.ListNamespaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lokictl: list namespaces: %v\n", err)
		os.Exit(1)
	}
	if len(namespaces) == 0 {
		fmt.Println("no namespaces found under", cfg.Memory.Root)
		return
	}
	for _, ns := range namespaces {
		stats, err := root.WithNamespace(ns).Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "lokictl: stats for %s: %v\n", ns, err)
			continue
		}
		fmt.Printf("%-24s episodes=%-6d patterns=%-6d anti_patterns=%-6d skills=%d\n",
			ns, stats.EpisodeCount, stats.PatternCount, stats.AntiPatternCount, stats.SkillCount)
	}
}

func runDecaySweep(cfg *config.Config, logger *slog.Logger) {
	root := memory.New(cfg.Memory.Root)
	namespaces, err := root.ListNamespaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lokictl: list namespaces: %v\n", err)
		os.Exit(1)
	}
	if len(namespaces) == 0 {
		namespaces = []string{cfg.Memory.DefaultNamespace}
	}

	now := time.Now()
	total := 0
	for _, ns := range namespaces {
		n, err := root.WithNamespace(ns).BatchApplyDecay(cfg.Memory.DecayRate, cfg.Memory.DecayHalfLifeDays, now)
		if err != nil {
			logger.Error("decay sweep failed for namespace", "namespace", ns, "error", err)
			continue
		}
		total += n
		fmt.Printf("%-24s decayed %d episode(s)\n", ns, n)
	}
	fmt.Printf("decay sweep complete: %d episode(s) across %d namespace(s)\n", total, len(namespaces))
}

func runChecklist(cfg *config.Config, sub string, args []string) {
	projectRoot := cfg.General.ProjectRoot
	if projectRoot == "" {
		projectRoot, _ = os.Getwd()
	}
	checklistPath := projectRoot + "/.loki/checklist/checklist.json"
	resultsPath := projectRoot + "/.loki/checklist/verification-results.json"
	yamlPath := projectRoot + "/.loki/checklist/checklist.yaml"

	switch sub {
	case "compile":
		fs := flag.NewFlagSet("checklist compile", flag.ExitOnError)
		source := fs.String("source", yamlPath, "path to the human-authored checklist.yaml")
		dest := fs.String("dest", checklistPath, "path to write the compiled checklist.json")
		_ = fs.Parse(args)

		cl, err := checklist.CompileYAML(*source, *dest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lokictl: compile checklist: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("compiled %d item(s) from %s into %s\n", len(cl.Items), *source, *dest)

	case "verify":
		fs := flag.NewFlagSet("checklist verify", flag.ExitOnError)
		clPath := fs.String("checklist", checklistPath, "path to checklist.json")
		resPath := fs.String("results", resultsPath, "path to write verification-results.json")
		_ = fs.Parse(args)

		cl, err := checklist.LoadChecklist(*clPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lokictl: load checklist: %v\n", err)
			os.Exit(1)
		}

		verifier := checklist.NewVerifier(projectRoot)
		updated, summary := verifier.Verify(context.Background(), cl, time.Now())
		if err := checklist.SaveResults(*clPath, *resPath, updated, summary); err != nil {
			fmt.Fprintf(os.Stderr, "lokictl: save verification results: %v\n", err)
			os.Exit(1)
		}

		verifiedCount := 0
		for _, it := range updated.Items {
			if it.Status == checklist.StatusVerified {
				verifiedCount++
			}
		}
		fmt.Printf("verified %d/%d checklist item(s)\n", verifiedCount, len(updated.Items))

	default:
		usage()
		os.Exit(2)
	}
}
