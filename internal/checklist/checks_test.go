package checklist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loki-swarm/core/internal/swarmio"
)

type fakeRunner struct {
	exitCode int
	output   string
	err      error
	delay    time.Duration
}

func (f fakeRunner) RunCommand(ctx context.Context, argv []string, dir string) (int, string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return -1, "", ctx.Err()
		}
	}
	return f.exitCode, f.output, f.err
}

func newVerifier(t *testing.T, runner Runner) *Verifier {
	t.Helper()
	root := t.TempDir()
	return &Verifier{ProjectRoot: root, Runner: runner}
}

func TestCheckFileExistsPassesForPresentFile(t *testing.T) {
	v := newVerifier(t, nil)
	os.WriteFile(filepath.Join(v.ProjectRoot, "README.md"), []byte("hi"), 0644)
	out := v.RunCheck(context.Background(), Verification{Type: CheckFileExists, Path: "README.md"})
	if out.Result != ResultPass {
		t.Fatalf("expected pass, got %+v", out)
	}
}

func TestCheckFileExistsFailsForMissingFile(t *testing.T) {
	v := newVerifier(t, nil)
	out := v.RunCheck(context.Background(), Verification{Type: CheckFileExists, Path: "missing.txt"})
	if out.Result != ResultFail {
		t.Fatalf("expected fail, got %+v", out)
	}
}

func TestCheckFileExistsRejectsPathTraversal(t *testing.T) {
	v := newVerifier(t, nil)
	out := v.RunCheck(context.Background(), Verification{Type: CheckFileExists, Path: "../../etc/passwd"})
	if out.Result != ResultFail || out.Detail != "unsafe path" {
		t.Fatalf("expected unsafe path rejection, got %+v", out)
	}
}

func TestCheckFileContainsMatchesPattern(t *testing.T) {
	v := newVerifier(t, nil)
	os.WriteFile(filepath.Join(v.ProjectRoot, "main.go"), []byte("package main\nfunc main() {}\n"), 0644)
	out := v.RunCheck(context.Background(), Verification{Type: CheckFileContains, Path: "main.go", Pattern: `func main`})
	if out.Result != ResultPass {
		t.Fatalf("expected pass, got %+v", out)
	}
}

func TestCheckFileContainsRejectsUnsafePattern(t *testing.T) {
	v := newVerifier(t, nil)
	os.WriteFile(filepath.Join(v.ProjectRoot, "main.go"), []byte("x"), 0644)
	out := v.RunCheck(context.Background(), Verification{Type: CheckFileContains, Path: "main.go", Pattern: "(a+)+"})
	if out.Result != ResultFail || out.Detail != "unsafe pattern" {
		t.Fatalf("expected unsafe pattern rejection, got %+v", out)
	}
}

func TestCheckCommandPassesOnZeroExit(t *testing.T) {
	v := newVerifier(t, fakeRunner{exitCode: 0})
	out := v.RunCheck(context.Background(), Verification{Type: CheckCommand, Cmd: []string{"true"}})
	if out.Result != ResultPass {
		t.Fatalf("expected pass, got %+v", out)
	}
}

func TestCheckCommandFailsOnNonZeroExit(t *testing.T) {
	v := newVerifier(t, fakeRunner{exitCode: 1, output: "boom"})
	out := v.RunCheck(context.Background(), Verification{Type: CheckCommand, Cmd: []string{"false"}})
	if out.Result != ResultFail {
		t.Fatalf("expected fail, got %+v", out)
	}
}

func TestCheckTestsPassIsPendingWithNoKnownRunner(t *testing.T) {
	v := newVerifier(t, fakeRunner{exitCode: 0})
	out := v.RunCheck(context.Background(), Verification{Type: CheckTestsPass})
	if out.Result != ResultPending {
		t.Fatalf("expected pending with no test-runner marker file, got %+v", out)
	}
}

func TestCheckTestsPassRunsDetectedGoSuite(t *testing.T) {
	v := newVerifier(t, fakeRunner{exitCode: 0})
	os.WriteFile(filepath.Join(v.ProjectRoot, "go.mod"), []byte("module x\n"), 0644)
	out := v.RunCheck(context.Background(), Verification{Type: CheckTestsPass})
	if out.Result != ResultPass {
		t.Fatalf("expected pass once go.mod is detected, got %+v", out)
	}
}

func TestCheckGrepCodebaseFindsPattern(t *testing.T) {
	v := newVerifier(t, nil)
	os.WriteFile(filepath.Join(v.ProjectRoot, "a.go"), []byte("// TODO: finish this"), 0644)
	out := v.RunCheck(context.Background(), Verification{Type: CheckGrepCodebase, Pattern: "TODO"})
	if out.Result != ResultPass {
		t.Fatalf("expected pass, got %+v", out)
	}
}

func TestCheckGrepCodebaseExcludesVendorDir(t *testing.T) {
	v := newVerifier(t, nil)
	os.MkdirAll(filepath.Join(v.ProjectRoot, "vendor"), 0755)
	os.WriteFile(filepath.Join(v.ProjectRoot, "vendor", "dep.go"), []byte("UNIQUEMARKER"), 0644)
	out := v.RunCheck(context.Background(), Verification{Type: CheckGrepCodebase, Pattern: "UNIQUEMARKER"})
	if out.Result != ResultFail {
		t.Fatalf("expected fail since vendor/ is excluded, got %+v", out)
	}
}

func TestCheckHTTPPendingWithoutRunningAppState(t *testing.T) {
	v := newVerifier(t, nil)
	out := v.RunCheck(context.Background(), Verification{Type: CheckHTTP, Path: "/health", ExpectedStatus: 200})
	if out.Result != ResultPending {
		t.Fatalf("expected pending without a running-app state file, got %+v", out)
	}
}

func TestCheckHTTPPassesAgainstLiveServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := newVerifier(t, nil)
	stateFile := filepath.Join(v.ProjectRoot, "app-state.json")
	swarmio.AtomicWriteJSON(stateFile, runningAppState{BaseURL: srv.URL})
	v.RunningAppStateFile = stateFile
	v.HTTPClient = srv.Client()

	out := v.RunCheck(context.Background(), Verification{Type: CheckHTTP, Path: "/health", ExpectedStatus: 200})
	if out.Result != ResultPass {
		t.Fatalf("expected pass, got %+v", out)
	}
}

func TestCheckHTTPFailsOnUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := newVerifier(t, nil)
	stateFile := filepath.Join(v.ProjectRoot, "app-state.json")
	swarmio.AtomicWriteJSON(stateFile, runningAppState{BaseURL: srv.URL})
	v.RunningAppStateFile = stateFile
	v.HTTPClient = srv.Client()

	out := v.RunCheck(context.Background(), Verification{Type: CheckHTTP, Path: "/health", ExpectedStatus: 200})
	if out.Result != ResultFail {
		t.Fatalf("expected fail on status mismatch, got %+v", out)
	}
}

func TestRunCheckTimeoutYieldsPendingNeverFail(t *testing.T) {
	v := newVerifier(t, fakeRunner{delay: 50 * time.Millisecond})
	out := v.runWithTimeout(context.Background(), time.Millisecond, func(ctx context.Context) CheckOutcome {
		_, _, err := v.Runner.RunCommand(ctx, []string{"sleep"}, v.ProjectRoot)
		if err != nil {
			return CheckOutcome{Result: ResultPending, Detail: "timed out"}
		}
		return CheckOutcome{Result: ResultPass}
	})
	if out.Result != ResultPending {
		t.Fatalf("expected pending on timeout, never fail, got %+v", out)
	}
}
