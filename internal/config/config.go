// Package config loads and validates the loki-swarm TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root of the loki-swarm runtime configuration.
type Config struct {
	General    General    `toml:"general"`
	Memory     Memory     `toml:"memory"`
	Retrieval  Retrieval  `toml:"retrieval"`
	Classifier Classifier `toml:"classifier"`
	Composer   Composer   `toml:"composer"`
	Council    Council    `toml:"council"`
	BFT        BFT        `toml:"bft"`
	Adjuster   Adjuster   `toml:"adjuster"`
	PerfTrack  PerfTrack  `toml:"perf_track"`
	Checklist  Checklist  `toml:"checklist"`
	Audit      Audit      `toml:"audit"`
	Collaborator Collaborator `toml:"collaborator"`
}

// General holds process-wide runtime knobs.
type General struct {
	ProjectRoot       string   `toml:"project_root"`        // where .loki/ lives; defaults to cwd
	TickInterval      Duration `toml:"tick_interval"`        // supervisory loop cadence, default 10s
	WorkerPoolSize    int      `toml:"worker_pool_size"`     // 0 = runtime.NumCPU()
	EventBusBufferLen int      `toml:"event_bus_buffer_len"` // default 4096
	LogLevel          string   `toml:"log_level"`
	DevLogFormat      bool     `toml:"dev_log_format"`
	AdjustEveryNTicks int      `toml:"adjust_every_n_ticks"` // C8 cadence, default 5
	VerifyEveryNTicks int      `toml:"verify_every_n_ticks"` // C11 cadence, default 10
	ComplexityOverride string  `toml:"complexity_override"`  // env knob: force a classifier tier
	TelemetryOptOut   bool     `toml:"telemetry_opt_out"`
}

// Memory configures the C1 Memory Store.
type Memory struct {
	Root              string   `toml:"root"` // defaults to ~/.loki/memory
	DefaultNamespace  string   `toml:"default_namespace"`
	DecaySweepCron    string   `toml:"decay_sweep_cron"` // robfig/cron expression, default "0 */6 * * *"
	DecayHalfLifeDays float64  `toml:"decay_half_life_days"`
	DecayRate         float64  `toml:"decay_rate"`
}

// Retrieval configures the C2 Retrieval Engine.
type Retrieval struct {
	DefaultTopK      int `toml:"default_top_k"`
	DefaultTokenBudget int `toml:"default_token_budget"`
}

// Classifier configures C4 overrides.
type Classifier struct {
	Override string `toml:"override"` // "" | simple | standard | complex | enterprise
}

// Composer configures C5.
type Composer struct {
	OrgPatternsPath string `toml:"org_patterns_path"`
}

// Council configures C6 weighting.
type Council struct {
	CalibrationAlpha    float64 `toml:"calibration_alpha"`    // EMA alpha, default 0.1
	SycophancyModerate  float64 `toml:"sycophancy_moderate"`  // default 0.5
	SycophancySevere    float64 `toml:"sycophancy_severe"`    // default 0.7
}

// BFT configures the C7 consensus layer. The HMAC key is supplied out of
// band (env var or file), never defaulted, per the "refuse to start
// without one in non-dev mode" design note.
type BFT struct {
	ConsensusTimeout            Duration `toml:"consensus_timeout"`
	MessageValidityWindow       Duration `toml:"message_validity_window"`
	MaxFaultsBeforeExclusion    int      `toml:"max_faults_before_exclusion"`
	ExclusionThreshold          float64  `toml:"exclusion_threshold"`
	RehabilitationThreshold     float64  `toml:"rehabilitation_threshold"`
	FaultWindow                 Duration `toml:"fault_window"` // window for "last hour" rule
	NonceCacheMax                int     `toml:"nonce_cache_max"`
	MessageRateLimitPerSec       float64 `toml:"message_rate_limit_per_sec"`
	MessageRateBurst             int     `toml:"message_rate_burst"`
	HMACKeyEnv                   string  `toml:"hmac_key_env"`  // env var name holding the shared key
	HMACKeyFile                  string  `toml:"hmac_key_file"` // or a file path
	DevMode                      bool    `toml:"dev_mode"`      // allows an insecure generated key for local dev
}

// Adjuster configures C8 thresholds.
type Adjuster struct {
	GatePassRateFloor   float64 `toml:"gate_pass_rate_floor"`
	IterationCountFloor int     `toml:"iteration_count_floor"`
	TestCoverageFloor   float64 `toml:"test_coverage_floor"`
	ReviewPassRateFloor float64 `toml:"review_pass_rate_floor"`
	ShrinkQualityFloor  float64 `toml:"shrink_quality_floor"`
	ShrinkMinAgents     int     `toml:"shrink_min_agents"`
}

// PerfTrack configures the C9 performance tracker. DBPath is the file the
// tracker's JSON stat rollup is loaded from and saved to.
type PerfTrack struct {
	DBPath        string `toml:"db_path"` // defaults to ~/.loki/swarm/perf/perf.db
	RingBufferLen int    `toml:"ring_buffer_len"` // default 20
}

// Checklist configures C11.
type Checklist struct {
	Sandbox          bool     `toml:"sandbox"` // run tests_pass/command inside docker
	SandboxImage     string   `toml:"sandbox_image"`
	DefaultTimeout   Duration `toml:"default_timeout"` // default 30s
	ExcludeDirs      []string `toml:"exclude_dirs"`     // not read by the verifier; grep_codebase skips its own fixed set
	VerifyCron       string   `toml:"verify_cron"`
	AppStateFile     string   `toml:"app_state_file"` // for http_check base URL resolution
}

// Collaborator configures the out-of-process boundary the orchestrator
// dispatches tasks and review requests across. The core never embeds a
// provider's API client (§1 non-goals) — it shells out to a configured
// command, passing a JSON request on stdin and reading a JSON response
// back from stdout, per internal/collab.
type Collaborator struct {
	DispatchCmd []string `toml:"dispatch_cmd"` // argv invoked for an Act request
	ReviewCmd   []string `toml:"review_cmd"`   // argv invoked for a Review request
	Timeout     Duration `toml:"timeout"`      // default 5m
}

// Audit configures the (externally consumed) audit log; the core only
// needs to know whether it is enabled and how large it may grow, since
// rotation itself is delegated (§1 non-goals).
type Audit struct {
	Enabled bool  `toml:"enabled"`
	MaxSizeBytes int64 `toml:"max_size_bytes"`
}

// Clone returns a deep copy of cfg so callers can safely mutate the result
// without affecting other readers holding the prior snapshot.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	cloned.Checklist.ExcludeDirs = cloneStringSlice(cfg.Checklist.ExcludeDirs)
	return &cloned
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Load reads and validates a TOML configuration file, applying defaults
// for anything left unset.
func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyDefaults(&cfg, md)
	normalizePaths(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadManager loads path and wraps it in a thread-safe ConfigManager.
func LoadManager(path string) (ConfigManager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewManager(cfg), nil
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	_ = md
	if cfg.General.TickInterval.Duration <= 0 {
		cfg.General.TickInterval = Duration{10 * time.Second}
	}
	if cfg.General.EventBusBufferLen <= 0 {
		cfg.General.EventBusBufferLen = 4096
	}
	if cfg.General.AdjustEveryNTicks <= 0 {
		cfg.General.AdjustEveryNTicks = 5
	}
	if cfg.General.VerifyEveryNTicks <= 0 {
		cfg.General.VerifyEveryNTicks = 10
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}

	if cfg.Memory.Root == "" {
		cfg.Memory.Root = filepath.Join(homeDir(), ".loki", "memory")
	}
	if cfg.Memory.DefaultNamespace == "" {
		cfg.Memory.DefaultNamespace = "default"
	}
	if cfg.Memory.DecaySweepCron == "" {
		cfg.Memory.DecaySweepCron = "0 */6 * * *"
	}
	if cfg.Memory.DecayHalfLifeDays <= 0 {
		cfg.Memory.DecayHalfLifeDays = 14
	}
	if cfg.Memory.DecayRate <= 0 {
		cfg.Memory.DecayRate = 1.0
	}

	if cfg.Retrieval.DefaultTopK <= 0 {
		cfg.Retrieval.DefaultTopK = 10
	}

	if cfg.Council.CalibrationAlpha <= 0 {
		cfg.Council.CalibrationAlpha = 0.1
	}
	if cfg.Council.SycophancyModerate <= 0 {
		cfg.Council.SycophancyModerate = 0.5
	}
	if cfg.Council.SycophancySevere <= 0 {
		cfg.Council.SycophancySevere = 0.7
	}

	if cfg.BFT.ConsensusTimeout.Duration <= 0 {
		cfg.BFT.ConsensusTimeout = Duration{30 * time.Second}
	}
	if cfg.BFT.MessageValidityWindow.Duration <= 0 {
		cfg.BFT.MessageValidityWindow = Duration{60 * time.Second}
	}
	if cfg.BFT.MaxFaultsBeforeExclusion <= 0 {
		cfg.BFT.MaxFaultsBeforeExclusion = 3
	}
	if cfg.BFT.ExclusionThreshold <= 0 {
		cfg.BFT.ExclusionThreshold = 0.3
	}
	if cfg.BFT.RehabilitationThreshold <= 0 {
		cfg.BFT.RehabilitationThreshold = 0.6
	}
	if cfg.BFT.FaultWindow.Duration <= 0 {
		cfg.BFT.FaultWindow = Duration{time.Hour}
	}
	if cfg.BFT.NonceCacheMax <= 0 {
		cfg.BFT.NonceCacheMax = 10000
	}
	if cfg.BFT.MessageRateLimitPerSec <= 0 {
		cfg.BFT.MessageRateLimitPerSec = 20
	}
	if cfg.BFT.MessageRateBurst <= 0 {
		cfg.BFT.MessageRateBurst = 40
	}
	if cfg.BFT.HMACKeyEnv == "" {
		cfg.BFT.HMACKeyEnv = "LOKI_BFT_HMAC_KEY"
	}

	if cfg.Adjuster.GatePassRateFloor <= 0 {
		cfg.Adjuster.GatePassRateFloor = 0.5
	}
	if cfg.Adjuster.IterationCountFloor <= 0 {
		cfg.Adjuster.IterationCountFloor = 3
	}
	if cfg.Adjuster.TestCoverageFloor <= 0 {
		cfg.Adjuster.TestCoverageFloor = 0.6
	}
	if cfg.Adjuster.ReviewPassRateFloor <= 0 {
		cfg.Adjuster.ReviewPassRateFloor = 0.5
	}
	if cfg.Adjuster.ShrinkQualityFloor <= 0 {
		cfg.Adjuster.ShrinkQualityFloor = 0.8
	}
	if cfg.Adjuster.ShrinkMinAgents <= 0 {
		cfg.Adjuster.ShrinkMinAgents = 4
	}

	if cfg.PerfTrack.DBPath == "" {
		cfg.PerfTrack.DBPath = filepath.Join(homeDir(), ".loki", "swarm", "perf", "perf.db")
	}
	if cfg.PerfTrack.RingBufferLen <= 0 {
		cfg.PerfTrack.RingBufferLen = 20
	}

	if cfg.Checklist.DefaultTimeout.Duration <= 0 {
		cfg.Checklist.DefaultTimeout = Duration{30 * time.Second}
	}
	if len(cfg.Checklist.ExcludeDirs) == 0 {
		cfg.Checklist.ExcludeDirs = []string{".git", "node_modules", "vendor", ".loki"}
	}
	if cfg.Checklist.VerifyCron == "" {
		cfg.Checklist.VerifyCron = "*/15 * * * *"
	}

	if cfg.Audit.MaxSizeBytes <= 0 {
		cfg.Audit.MaxSizeBytes = 50 * 1024 * 1024
	}

	if cfg.Collaborator.Timeout.Duration <= 0 {
		cfg.Collaborator.Timeout = Duration{5 * time.Minute}
	}
}

func normalizePaths(cfg *Config) {
	cfg.Memory.Root = ExpandHome(cfg.Memory.Root)
	cfg.PerfTrack.DBPath = ExpandHome(cfg.PerfTrack.DBPath)
	cfg.General.ProjectRoot = ExpandHome(cfg.General.ProjectRoot)
}

// ExpandHome expands a leading "~" to the current user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	rest := strings.TrimPrefix(path, "~")
	rest = strings.TrimPrefix(rest, string(filepath.Separator))
	return filepath.Join(homeDir(), rest)
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	return "."
}

func validate(cfg *Config) error {
	if cfg.BFT.ExclusionThreshold >= cfg.BFT.RehabilitationThreshold {
		return fmt.Errorf("bft.exclusion_threshold (%.2f) must be lower than bft.rehabilitation_threshold (%.2f)",
			cfg.BFT.ExclusionThreshold, cfg.BFT.RehabilitationThreshold)
	}
	if cfg.General.ComplexityOverride != "" {
		switch cfg.General.ComplexityOverride {
		case "simple", "standard", "complex", "enterprise":
		default:
			return fmt.Errorf("general.complexity_override %q is not a valid tier", cfg.General.ComplexityOverride)
		}
	}
	if cfg.Checklist.Sandbox && cfg.Checklist.SandboxImage == "" {
		return fmt.Errorf("checklist.sandbox_image is required when checklist.sandbox is enabled")
	}
	return nil
}
