// Command lokicore runs the loki-swarm coordination runtime: the
// Reason/Act/Review/Verify loop (C10) wired to every other component
// (C1-C9, C11). Its CLI surface is deliberately minimal — a single `run`
// verb — because pause/stop/inspection live in lokictl instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"

	"github.com/loki-swarm/core/internal/bft"
	"github.com/loki-swarm/core/internal/checklist"
	"github.com/loki-swarm/core/internal/classifier"
	"github.com/loki-swarm/core/internal/collab"
	"github.com/loki-swarm/core/internal/composer"
	"github.com/loki-swarm/core/internal/config"
	"github.com/loki-swarm/core/internal/council"
	"github.com/loki-swarm/core/internal/eventbus"
	"github.com/loki-swarm/core/internal/memory"
	"github.com/loki-swarm/core/internal/orchestrator"
	"github.com/loki-swarm/core/internal/perftrack"
	"github.com/loki-swarm/core/internal/retrieval"
	"github.com/loki-swarm/core/internal/swarmio"
	"github.com/loki-swarm/core/internal/temporalrarv"
	"github.com/loki-swarm/core/internal/vectorindex"
)

var validProviders = map[string]bool{"default": true, "anthropic": true, "openai": true, "local": true}

func configureLogger(logLevel string, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	fs := flag.NewFlagSet("lokicore", flag.ExitOnError)
	configPath := fs.String("config", ".loki/loki.toml", "path to config file")
	dev := fs.Bool("dev", os.Getenv("LOKI_DEV") != "", "use text log format (default is JSON)")
	provider := fs.String("provider", "default", "named collaborator backend to dispatch work through")
	parallel := fs.Bool("parallel", false, "run up to worker_pool_size iterations concurrently")
	background := fs.Bool("bg", false, "print the session pid and detach logging expectations to the caller")
	tokenBudget := fs.Int("token-budget", 4000, "per-iteration retrieval token budget")

	args := os.Args[1:]
	if len(args) == 0 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: lokicore run [--provider X] [--parallel] [--bg] [<PRD path>]")
		os.Exit(2)
	}
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if !validProviders[*provider] {
		logger.Error("unknown provider", "provider", *provider)
		os.Exit(1)
	}

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		logger.Error("failed to load config", "config", *configPath, "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger = configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	projectRoot := cfg.General.ProjectRoot
	if projectRoot == "" {
		projectRoot, _ = os.Getwd()
	}
	homeDir, _ := os.UserHomeDir()

	var prdText string
	if prdPath := fs.Arg(0); prdPath != "" {
		resolved, resolveErr := resolvePRDPath(projectRoot, homeDir, prdPath)
		if resolveErr != nil {
			logger.Error("PRD path rejected", "path", prdPath, "error", resolveErr)
			os.Exit(1)
		}
		raw, readErr := os.ReadFile(resolved)
		if readErr != nil {
			logger.Error("failed to read PRD", "path", resolved, "error", readErr)
			os.Exit(1)
		}
		prdText = string(raw)
	}

	loggerComponents := logger.With("component", "lokicore")

	store := memory.New(cfg.Memory.Root).WithNamespace(cfg.Memory.DefaultNamespace)
	vectors, vecErr := loadOrCreateIndex(filepath.Join(cfg.Memory.Root, cfg.Memory.DefaultNamespace, "vectors", "index.vec"))
	if vecErr != nil {
		logger.Warn("failed to load vector index, starting empty", "error", vecErr)
		vectors = vectorindex.New(1536)
	}
	retrievalEngine := retrieval.NewEngine(store, vectors)

	perfTrack, err := perftrack.Open(cfg.PerfTrack.DBPath)
	if err != nil {
		logger.Error("failed to open performance tracker", "path", cfg.PerfTrack.DBPath, "error", err)
		os.Exit(1)
	}

	reputation := bft.NewTracker(bft.Thresholds{
		ExclusionThreshold:       cfg.BFT.ExclusionThreshold,
		RehabilitationThreshold:  cfg.BFT.RehabilitationThreshold,
		MaxFaultsBeforeExclusion: cfg.BFT.MaxFaultsBeforeExclusion,
	})
	consensus := bft.NewEngine(reputation)
	calibrator := council.NewCalibrator()

	verifier := checklist.NewVerifier(projectRoot)
	if cfg.Checklist.Sandbox {
		sandbox, sandboxErr := checklist.NewSandboxRunner(cfg.Checklist.SandboxImage)
		if sandboxErr != nil {
			logger.Error("failed to start checklist sandbox runner", "error", sandboxErr)
			os.Exit(1)
		}
		verifier.Runner = sandbox
	}

	runHistory, err := checklist.OpenRunHistory(filepath.Join(homeDir, ".loki", "swarm", "perf", "checklist-history.db"))
	if err != nil {
		logger.Warn("failed to open checklist run history, verification trends won't be recorded", "error", err)
	} else {
		defer runHistory.Close()
	}

	lokiDir := filepath.Join(projectRoot, ".loki")
	events, err := eventbus.Open(filepath.Join(lokiDir, "events.jsonl"), cfg.General.EventBusBufferLen, loggerComponents.With("subsystem", "eventbus"))
	if err != nil {
		logger.Error("failed to open event bus", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	classification := classifier.Classify(prdText, cfg.General.ComplexityOverride)
	orgPatterns := loadOrgPatterns(cfg.Composer.OrgPatternsPath)
	composition := composer.Compose(classification, orgPatterns, perfTrack)
	logger.Info("classified and composed initial team",
		"tier", classification.Tier, "agent_count", len(composition.Agents), "provider", *provider)

	collaborator := collab.New(cfg.Collaborator.DispatchCmd, cfg.Collaborator.ReviewCmd, cfg.Collaborator.Timeout.Duration).WithProvider(*provider)

	queue := orchestrator.NewQueue(filepath.Join(lokiDir, "queue"))
	control := orchestrator.ControlFiles{Dir: lokiDir}
	if err := control.WritePID(os.Getpid()); err != nil {
		logger.Warn("failed to write session pid file", "error", err)
	}

	session := orchestrator.NewSession(lokiDir, cfg.Memory.DefaultNamespace, composition.Agents, orchestrator.Session{
		Queue:             queue,
		Control:           control,
		Events:            events,
		Memory:            store,
		Retrieval:         retrievalEngine,
		Reputation:        reputation,
		Consensus:         consensus,
		Calibrator:        calibrator,
		PerfTrack:         perfTrack,
		Verifier:          verifier,
		RunHistory:        runHistory,
		Collaborator:      collaborator,
		Logger:            loggerComponents,
		AdjustEveryNTicks: cfg.General.AdjustEveryNTicks,
		VerifyEveryMTicks: cfg.General.VerifyEveryNTicks,
	})

	dashboard := orchestrator.NewDashboardWriter(lokiDir, func() orchestrator.DashboardState {
		return session.Snapshot(string(classification.Tier))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dashboard.Run(ctx, 2*time.Second)

	sweeps := cron.New()
	rootStore := memory.New(cfg.Memory.Root)
	if err := sweeps.AddFunc(cfg.Memory.DecaySweepCron, func() {
		namespaces, nsErr := rootStore.ListNamespaces()
		if nsErr != nil {
			loggerComponents.Warn("decay sweep: failed to list namespaces", "error", nsErr)
			return
		}
		for _, ns := range namespaces {
			n, decayErr := rootStore.WithNamespace(ns).BatchApplyDecay(cfg.Memory.DecayRate, cfg.Memory.DecayHalfLifeDays, time.Now())
			if decayErr != nil {
				loggerComponents.Warn("decay sweep failed for namespace", "namespace", ns, "error", decayErr)
				continue
			}
			if n > 0 {
				loggerComponents.Info("decay sweep applied", "namespace", ns, "episodes_decayed", n)
			}
		}
	}); err != nil {
		logger.Error("invalid memory.decay_sweep_cron expression", "expr", cfg.Memory.DecaySweepCron, "error", err)
		os.Exit(1)
	}
	if err := sweeps.AddFunc(cfg.Checklist.VerifyCron, func() {
		cl, loadErr := checklist.LoadChecklist(filepath.Join(lokiDir, "checklist", "checklist.json"))
		if loadErr != nil {
			loggerComponents.Warn("scheduled verification: failed to load checklist", "error", loadErr)
			return
		}
		updated, summary := verifier.Verify(ctx, cl, time.Now())
		if saveErr := checklist.SaveResults(
			filepath.Join(lokiDir, "checklist", "checklist.json"),
			filepath.Join(lokiDir, "checklist", "verification-results.json"),
			updated, summary,
		); saveErr != nil {
			loggerComponents.Warn("scheduled verification: failed to persist results", "error", saveErr)
		}
		if runHistory != nil {
			if histErr := runHistory.Record(summary); histErr != nil {
				loggerComponents.Warn("scheduled verification: failed to record history", "error", histErr)
			}
		}
	}); err != nil {
		logger.Error("invalid checklist.verify_cron expression", "expr", cfg.Checklist.VerifyCron, "error", err)
		os.Exit(1)
	}
	sweeps.Start()
	defer sweeps.Stop()

	if hostPort := os.Getenv("LOKI_TEMPORAL_HOST_PORT"); hostPort != "" {
		go func() {
			deps := temporalrarv.Activities{
				Retrieval:    retrievalEngine,
				Collaborator: collaborator,
				Calibrator:   calibrator,
				Reputation:   reputation,
				PerfTrack:    perfTrack,
				Verifier:     verifier,
				Memory:       store,
				AgentFor: func(agentType string) composer.Agent {
					return session.AgentOfType(agentType)
				},
			}
			if err := temporalrarv.StartWorker(hostPort, deps, loggerComponents.With("subsystem", "temporalrarv")); err != nil {
				logger.Error("temporal worker exited", "error", err)
			}
		}()
	}

	applyReload := func() error {
		updated, reloadErr := config.Load(*configPath)
		if reloadErr != nil {
			return reloadErr
		}
		cfgManager.Set(updated)
		logger = configureLogger(updated.General.LogLevel, *dev)
		slog.SetDefault(logger)
		return nil
	}

	if *background {
		fmt.Printf("lokicore started, pid %d\n", os.Getpid())
	}

	go func() {
		if *parallel {
			runParallel(ctx, session, cfg.General.WorkerPoolSize, *tokenBudget, loggerComponents)
			return
		}
		session.Run(ctx, *tokenBudget)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			if err := applyReload(); err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded")
		default:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			if saveErr := vectors.Save(filepath.Join(cfg.Memory.Root, cfg.Memory.DefaultNamespace, "vectors", "index.vec")); saveErr != nil {
				logger.Warn("failed to persist vector index on shutdown", "error", saveErr)
			}
			if saveErr := perfTrack.Save(); saveErr != nil {
				logger.Warn("failed to persist performance tracker on shutdown", "error", saveErr)
			}
			return
		}
	}
}

// runParallel drives up to poolSize concurrent RunIteration workers until
// ctx is cancelled or a STOP control file appears, per the bounded worker
// pool the runtime's concurrency model calls for. A pending task may be
// picked up by more than one worker in the narrow window between
// NextPending and Transition; that race is pre-existing in the single-
// queue file model and immaterial at the scale --parallel targets.
func runParallel(ctx context.Context, session *orchestrator.Session, poolSize, tokenBudget int, logger *slog.Logger) {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)
	for i := 0; i < poolSize; i++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil || session.Control.IsStopped() {
					return nil
				}
				if session.Control.IsPaused() {
					time.Sleep(500 * time.Millisecond)
					continue
				}
				session.RunIteration(gctx, tokenBudget)
				time.Sleep(200 * time.Millisecond)
			}
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("parallel worker pool exited with error", "error", err)
	}
}

func resolvePRDPath(projectRoot, home, prdPath string) (string, error) {
	if !filepath.IsAbs(prdPath) {
		if resolved, err := swarmio.ResolveUnder(projectRoot, prdPath); err == nil {
			return resolved, nil
		}
		if resolved, err := swarmio.ResolveUnder(home, prdPath); err == nil {
			return resolved, nil
		}
		return "", fmt.Errorf("PRD path %q escapes both project root and home", prdPath)
	}

	for _, root := range []string{projectRoot, home} {
		rel, err := filepath.Rel(root, prdPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if resolved, err := swarmio.ResolveUnder(root, rel); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("PRD path %q escapes both project root and home", prdPath)
}

func loadOrCreateIndex(path string) (*vectorindex.Index, error) {
	if _, err := os.Stat(path); err != nil {
		return vectorindex.New(1536), nil
	}
	return vectorindex.Load(path)
}

func loadOrgPatterns(path string) []string {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns
}
