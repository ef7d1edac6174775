package checker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/quaso-pack/internal/builder"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

var errExit = errors.New("exit status 1")

// recordingRunner records "dir: argv" per call and fails on a matching command.
type recordingRunner struct {
	root   string
	calls  []string
	failOn string
}

func (r *recordingRunner) Run(_ context.Context, cmd builder.Command) ([]byte, error) {
	rel, _ := filepath.Rel(r.root, cmd.Dir)
	call := filepath.ToSlash(rel) + ": " + cmd.String()
	r.calls = append(r.calls, call)

	if r.failOn != "" && call == r.failOn {
		return []byte("warning: unused variable\nerror: aborting"), errExit
	}

	return nil, nil
}

// newWorkspace creates a root project and two templates.
func newWorkspace(t *testing.T, rootProject bool) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	cfg.Templates = map[string]config.TemplateConfig{
		"top-down": {Platforms: []string{"desktop"}},
	}

	for _, name := range []string{"fresh-start", "top-down"} {
		require.NoError(t, os.MkdirAll(filepath.Join(cfg.TemplatesPath(), name), 0o755))
	}

	if rootProject {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Workspace, "Cargo.toml"), []byte("[workspace]"), 0o644))
	}

	return cfg
}

// TestRunOrder runs every step in order across the root and each template.
func TestRunOrder(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t, true)
	runner := &recordingRunner{root: cfg.Workspace}

	require.NoError(t, Run(context.Background(), &Options{Config: cfg, GOOS: "linux", Runner: runner}))

	want := []string{
		".: cargo fmt --all -- --check",
		".: cargo build --release",
		".: cargo build --release --target wasm32-unknown-unknown",
		".: cargo clippy --all-targets -- -D warnings",
		".: cargo test",
		"templates/fresh-start: cargo fmt --all -- --check",
		"templates/fresh-start: cargo build --release",
		"templates/fresh-start: wasm-pack build --release --target web --out-dir pkg --out-name fresh_start --no-typescript",
		"templates/fresh-start: cargo clippy --all-targets -- -D warnings",
		"templates/fresh-start: cargo test",
		"templates/top-down: cargo fmt --all -- --check",
		"templates/top-down: cargo build --release",
		"templates/top-down: cargo clippy --all-targets -- -D warnings",
		"templates/top-down: cargo test",
	}
	require.Equal(t, want, runner.calls)
}

// TestRunFailFast stops at the first failing step and names it.
func TestRunFailFast(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t, true)
	runner := &recordingRunner{
		root:   cfg.Workspace,
		failOn: "templates/fresh-start: cargo clippy --all-targets -- -D warnings",
	}

	err := Run(context.Background(), &Options{Config: cfg, GOOS: "linux", Runner: runner})

	var checkErr *CheckError
	require.ErrorAs(t, err, &checkErr)
	require.Equal(t, "fresh-start", checkErr.Project)
	require.Equal(t, StepLint, checkErr.Step)
	require.ErrorIs(t, err, errExit)
	require.Contains(t, err.Error(), "error: aborting")
	require.Equal(t, runner.failOn, runner.calls[len(runner.calls)-1])

	for _, call := range runner.calls {
		require.False(t, strings.HasPrefix(call, "templates/top-down"), call)
	}
}

// TestRunBuildFailure keeps the BuildFailure reachable for exit code mapping.
func TestRunBuildFailure(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t, false)
	runner := &recordingRunner{
		root:   cfg.Workspace,
		failOn: "templates/fresh-start: cargo build --release",
	}

	err := Run(context.Background(), &Options{Config: cfg, GOOS: "linux", Runner: runner})

	var checkErr *CheckError
	require.ErrorAs(t, err, &checkErr)
	require.Equal(t, StepBuild, checkErr.Step)
	require.Equal(t, pack.StageBuild, pack.StageOf(err))

	// No root manifest, so the first call is the template format check.
	require.Equal(t, "templates/fresh-start: cargo fmt --all -- --check", runner.calls[0])
}

// TestRunDisabledStep skips steps configured with an empty command.
func TestRunDisabledStep(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t, false)
	cfg.Checks.Lint = nil
	runner := &recordingRunner{root: cfg.Workspace}

	require.NoError(t, Run(context.Background(), &Options{Config: cfg, GOOS: "linux", Runner: runner}))

	for _, call := range runner.calls {
		require.NotContains(t, call, "clippy")
	}
}

// TestRunNothingToCheck fails on a workspace with no projects.
func TestRunNothingToCheck(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	require.NoError(t, os.MkdirAll(cfg.TemplatesPath(), 0o755))

	err := Run(context.Background(), &Options{Config: cfg, Runner: &recordingRunner{root: cfg.Workspace}})
	require.ErrorIs(t, err, errNoProjects)
}
