package cleaner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// fakeProcess implements ps.Process.
type fakeProcess struct {
	pid  int
	name string
}

func (p fakeProcess) Pid() int { return p.pid }
func (p fakeProcess) PPid() int { return 1 }
func (p fakeProcess) Executable() string { return p.name }

func noProcesses() ([]ps.Process, error) { return nil, nil }

func processes(names ...string) ProcessLister {
	return func() ([]ps.Process, error) {
		result := make([]ps.Process, 0, len(names))
		for i, name := range names {
			result = append(result, fakeProcess{pid: 100000 + i, name: name})
		}

		return result, nil
	}
}

// workspace lays out two templates with build output and lockfiles.
func workspace(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]os.FileMode{
		"Cargo.toml":                                         0o644,
		"Cargo.lock":                                         0o644,
		"target/debug/quaso":                                 0o755,
		"templates/slot-machine/Cargo.lock":                  0o644,
		"templates/slot-machine/src/main.rs":                 0o644,
		"templates/slot-machine/target/release/slot-machine": 0o755,
		"templates/top-down/target/release/top-down":         0o755,
		"templates/top-down/target-notes.md":                 0o644,
		"templates/top-down/src/target.rs":                   0o644,
		"templates/top-down/Cargo.lock.bak":                  0o644,
	}

	for rel, mode := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(rel), mode))
	}

	return root
}

func defaultClean() config.CleanConfig {
	return config.Default().Clean
}

// TestCleanRemovesExactMatches removes every N dirs and M lockfiles and nothing else.
func TestCleanRemovesExactMatches(t *testing.T) {
	t.Parallel()

	root := workspace(t)

	report, err := New(root, defaultClean(), WithProcessLister(noProcesses)).Clean(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Failed)

	removed := append([]string(nil), report.Removed...)
	sort.Strings(removed)
	require.Equal(t, []string{
		"Cargo.lock",
		"target",
		"templates/slot-machine/Cargo.lock",
		"templates/slot-machine/target",
		"templates/top-down/target",
	}, removed)

	for _, rel := range removed {
		require.NoFileExists(t, filepath.Join(root, filepath.FromSlash(rel)))
		require.NoDirExists(t, filepath.Join(root, filepath.FromSlash(rel)))
	}

	for _, kept := range []string{
		"Cargo.toml",
		"templates/slot-machine/src/main.rs",
		"templates/top-down/target-notes.md",
		"templates/top-down/src/target.rs",
		"templates/top-down/Cargo.lock.bak",
	} {
		require.FileExists(t, filepath.Join(root, filepath.FromSlash(kept)))
	}
}

// TestCleanIsIdempotent succeeds as a no-op on a clean workspace.
func TestCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	root := workspace(t)
	c := New(root, defaultClean(), WithProcessLister(noProcesses))

	_, err := c.Clean(context.Background())
	require.NoError(t, err)

	report, err := c.Clean(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Removed)
	require.Empty(t, report.Failed)
}

// TestCleanRunningExecutable reports the busy directory and still removes the rest.
func TestCleanRunningExecutable(t *testing.T) {
	t.Parallel()

	root := workspace(t)

	report, err := New(root, defaultClean(), WithProcessLister(processes("slot-machine"))).Clean(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"templates/slot-machine/target"}, report.Failed)
	require.Len(t, report.Removed, 4)

	var busy *pack.ResourceBusyError
	require.ErrorAs(t, err, &busy)
	require.Equal(t, filepath.Join(root, "templates", "slot-machine", "target"), busy.Path)
	require.ErrorIs(t, err, errProcessRunning)
	require.DirExists(t, busy.Path)
	require.NoDirExists(t, filepath.Join(root, "templates", "top-down", "target"))
}

// TestCleanBusyRemoval maps EBUSY-like failures to ResourceBusyError and aggregates errors.
func TestCleanBusyRemoval(t *testing.T) {
	t.Parallel()

	root := workspace(t)
	errDenied := errors.New("permission denied")

	remove := func(path string) error {
		switch {
		case strings.HasSuffix(path, filepath.Join("top-down", "target")):
			return &os.PathError{Op: "unlinkat", Path: path, Err: busyErrno}
		case path == filepath.Join(root, "Cargo.lock"):
			return errDenied
		default:
			return os.RemoveAll(path)
		}
	}

	report, err := New(root, defaultClean(), WithProcessLister(noProcesses), WithRemove(remove)).Clean(context.Background())
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorIs(t, err, errDenied)
	require.Len(t, report.Failed, 2)
	require.Len(t, report.Removed, 3)

	var busy *pack.ResourceBusyError
	require.ErrorAs(t, err, &busy)
	require.Equal(t, pack.StageClean, pack.StageOf(busy))
}

// TestMatchesProcess handles the truncated process names reported by Linux.
func TestMatchesProcess(t *testing.T) {
	t.Parallel()

	running := map[string]struct{}{"slot-machine": {}, "platformer-game": {}}

	require.True(t, matchesProcess("slot-machine", running))
	require.True(t, matchesProcess("platformer-game-template", running))
	require.False(t, matchesProcess("slot", running))
	require.False(t, matchesProcess("top-down", running))
}

// TestIsBusy recognizes wrapped busy errors.
func TestIsBusy(t *testing.T) {
	t.Parallel()

	require.True(t, isBusy(&os.PathError{Op: "remove", Path: "x", Err: busyErrno}))
	require.False(t, isBusy(os.ErrNotExist))
	require.False(t, isBusy(syscall.ENOENT))
}
