package checklist

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/loki-swarm/core/internal/swarmio"
)

const defaultCheckTimeout = 30 * time.Second

// excludeDirs are skipped by grep_codebase and never traversed for
// tests_pass test-runner discovery.
var excludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".cache":       true,
	"dist":         true,
	"build":        true,
}

// safePathPattern limits a path to a conservative character set. It does
// not by itself reject ".." or absolute paths; isSafePath relies on
// swarmio.ResolveUnder's containment check for that.
var safePathPattern = regexp.MustCompile(`^[A-Za-z0-9_./\-]+$`)

// unsafePatternMarkers, together with the nested-quantifier check in
// isSafePattern, flag regex complexity indicators that commonly cause
// catastrophic backtracking (nested quantifiers); it's a coarse filter,
// not a full ReDoS detector.
var unsafePatternMarkers = []string{"(.*)*", "(.+)+", "(.*)+", "(.+)*"}

func isSafePath(root, rel string) (string, bool) {
	if !safePathPattern.MatchString(rel) {
		return "", false
	}
	abs, err := swarmio.ResolveUnder(root, rel)
	if err != nil {
		return "", false
	}
	return abs, true
}

func isSafePattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	for _, marker := range unsafePatternMarkers {
		if strings.Contains(pattern, marker) {
			return false
		}
	}
	// A quantified group whose body itself ends in a quantifier, e.g. "(a+)+".
	if regexp.MustCompile(`\([^()]*[+*]\)[+*{]`).MatchString(pattern) {
		return false
	}
	_, err := regexp.Compile(pattern)
	return err == nil
}

// Runner executes the check kinds that need real I/O. It is an interface
// so the orchestrator can substitute a sandboxed implementation (see
// SandboxRunner) without changing the grading logic.
type Runner interface {
	RunCommand(ctx context.Context, argv []string, dir string) (exitCode int, output string, err error)
}

// LocalRunner runs checks as direct child processes via exec.CommandContext
// (argv-list, never shell=true), the default when sandboxing is disabled.
type LocalRunner struct{}

func (LocalRunner) RunCommand(ctx context.Context, argv []string, dir string) (int, string, error) {
	if len(argv) == 0 {
		return -1, "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return -1, buf.String(), err
		}
	}
	return exitCode, buf.String(), nil
}

// Verifier grades checklist items against a project root.
type Verifier struct {
	ProjectRoot string
	Runner      Runner
	HTTPClient  *http.Client
	// RunningAppStateFile, when non-empty, is read to discover the base URL
	// for http_check verifications; its absence makes http_check pending.
	RunningAppStateFile string
}

// NewVerifier returns a Verifier using the local process runner.
func NewVerifier(projectRoot string) *Verifier {
	return &Verifier{
		ProjectRoot: projectRoot,
		Runner:      LocalRunner{},
		HTTPClient:  &http.Client{Timeout: defaultCheckTimeout},
	}
}

func (v *Verifier) runWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) CheckOutcome) CheckOutcome {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan CheckOutcome, 1)
	go func() {
		done <- fn(cctx)
	}()
	select {
	case out := <-done:
		return out
	case <-cctx.Done():
		return CheckOutcome{Result: ResultPending, Detail: "timed out"}
	}
}

// RunCheck grades a single Verification, always within its timeout, and
// always converting a timeout into ResultPending rather than ResultFail.
func (v *Verifier) RunCheck(ctx context.Context, chk Verification) CheckOutcome {
	out := v.runWithTimeout(ctx, defaultCheckTimeout, func(cctx context.Context) CheckOutcome {
		switch chk.Type {
		case CheckFileExists:
			return v.checkFileExists(chk)
		case CheckFileContains:
			return v.checkFileContains(chk)
		case CheckTestsPass:
			return v.checkTestsPass(cctx, chk)
		case CheckCommand:
			return v.checkCommand(cctx, chk)
		case CheckGrepCodebase:
			return v.checkGrepCodebase(chk)
		case CheckHTTP:
			return v.checkHTTP(cctx, chk)
		default:
			return CheckOutcome{Type: chk.Type, Result: ResultFail, Detail: "unknown check kind"}
		}
	})
	out.Type = chk.Type
	return out
}

func (v *Verifier) checkFileExists(chk Verification) CheckOutcome {
	abs, ok := isSafePath(v.ProjectRoot, chk.Path)
	if !ok {
		return CheckOutcome{Result: ResultFail, Detail: "unsafe path"}
	}
	if _, err := os.Stat(abs); err != nil {
		return CheckOutcome{Result: ResultFail, Detail: "not found"}
	}
	return CheckOutcome{Result: ResultPass}
}

func (v *Verifier) checkFileContains(chk Verification) CheckOutcome {
	abs, ok := isSafePath(v.ProjectRoot, chk.Path)
	if !ok {
		return CheckOutcome{Result: ResultFail, Detail: "unsafe path"}
	}
	if !isSafePattern(chk.Pattern) {
		return CheckOutcome{Result: ResultFail, Detail: "unsafe pattern"}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return CheckOutcome{Result: ResultFail, Detail: "not found"}
	}
	re := regexp.MustCompile(chk.Pattern)
	if !re.Match(data) {
		return CheckOutcome{Result: ResultFail, Detail: "pattern not found"}
	}
	return CheckOutcome{Result: ResultPass}
}

// testRunnerByMarker maps a marker file present at the project root to the
// argv that runs its test suite.
var testRunnerByMarker = []struct {
	marker string
	argv   []string
}{
	{"go.mod", []string{"go", "test", "./..."}},
	{"package.json", []string{"npm", "test"}},
	{"Cargo.toml", []string{"cargo", "test"}},
	{"pyproject.toml", []string{"pytest"}},
	{"pom.xml", []string{"mvn", "test"}},
}

func (v *Verifier) checkTestsPass(ctx context.Context, chk Verification) CheckOutcome {
	argv := detectTestRunner(v.ProjectRoot)
	if argv == nil {
		return CheckOutcome{Result: ResultPending, Detail: "no known test runner detected"}
	}
	exitCode, output, err := v.Runner.RunCommand(ctx, argv, v.ProjectRoot)
	if err != nil {
		return CheckOutcome{Result: ResultPending, Detail: err.Error()}
	}
	if exitCode != 0 {
		return CheckOutcome{Result: ResultFail, Detail: truncate(output, 500)}
	}
	return CheckOutcome{Result: ResultPass}
}

func detectTestRunner(root string) []string {
	for _, candidate := range testRunnerByMarker {
		if _, err := os.Stat(filepath.Join(root, candidate.marker)); err == nil {
			return candidate.argv
		}
	}
	return nil
}

func (v *Verifier) checkCommand(ctx context.Context, chk Verification) CheckOutcome {
	if len(chk.Cmd) == 0 {
		return CheckOutcome{Result: ResultFail, Detail: "empty command"}
	}
	exitCode, output, err := v.Runner.RunCommand(ctx, chk.Cmd, v.ProjectRoot)
	if err != nil {
		return CheckOutcome{Result: ResultPending, Detail: err.Error()}
	}
	if exitCode != 0 {
		return CheckOutcome{Result: ResultFail, Detail: truncate(output, 500)}
	}
	return CheckOutcome{Result: ResultPass}
}

func (v *Verifier) checkGrepCodebase(chk Verification) CheckOutcome {
	if !isSafePattern(chk.Pattern) {
		return CheckOutcome{Result: ResultFail, Detail: "unsafe pattern"}
	}
	re := regexp.MustCompile(chk.Pattern)
	found := false
	_ = filepath.WalkDir(v.ProjectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if d.IsDir() && excludeDirs[d.Name()] {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if re.Match(data) {
			found = true
		}
		return nil
	})
	if !found {
		return CheckOutcome{Result: ResultFail, Detail: "pattern not found in codebase"}
	}
	return CheckOutcome{Result: ResultPass}
}

// runningAppState is the minimal shape read from the state file that tells
// http_check where the app under test is listening.
type runningAppState struct {
	BaseURL string `json:"base_url"`
}

func (v *Verifier) checkHTTP(ctx context.Context, chk Verification) CheckOutcome {
	if v.RunningAppStateFile == "" {
		return CheckOutcome{Result: ResultPending, Detail: "no running-app state configured"}
	}
	var state runningAppState
	ok, err := swarmio.ReadJSON(v.RunningAppStateFile, &state)
	if err != nil || !ok || state.BaseURL == "" {
		return CheckOutcome{Result: ResultPending, Detail: "app not up"}
	}
	url := strings.TrimRight(state.BaseURL, "/") + "/" + strings.TrimLeft(chk.Path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CheckOutcome{Result: ResultPending, Detail: err.Error()}
	}
	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return CheckOutcome{Result: ResultPending, Detail: "app not up"}
	}
	defer resp.Body.Close()
	if resp.StatusCode != chk.ExpectedStatus {
		return CheckOutcome{Result: ResultFail, Detail: fmt.Sprintf("status %d, expected %d", resp.StatusCode, chk.ExpectedStatus)}
	}
	return CheckOutcome{Result: ResultPass}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
