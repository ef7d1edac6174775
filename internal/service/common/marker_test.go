//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// livePID stands in for a process that is still running.
const livePID = 9_999_001

type fakeProcess struct{ pid int }

func (p fakeProcess) Pid() int { return p.pid }
func (p fakeProcess) PPid() int { return 1 }
func (p fakeProcess) Executable() string { return "quaso-pack" }

// findLive reports only livePID as running.
func findLive(pid int) (ps.Process, error) {
	if pid == livePID {
		return fakeProcess{pid: pid}, nil
	}

	return nil, nil
}

func writeMarker(t *testing.T, path string, marker Marker) {
	t.Helper()

	data, err := yaml.Marshal(&marker)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// TestLockAcquireRelease creates and removes the marker.
func TestLockAcquireRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)

	lock, err := acquireLock(context.Background(), path, findLive)
	require.NoError(t, err)

	_, err = uuid.Parse(lock.RunID())
	require.NoError(t, err)

	marker, err := ReadMarker(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), marker.PID)
	require.Equal(t, lock.RunID(), marker.RunID)

	require.NoError(t, lock.Release())
	require.NoFileExists(t, path)

	// Releasing twice is harmless.
	require.NoError(t, lock.Release())
}

// TestLockExclusive refuses a second run while the first holds the marker.
func TestLockExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)

	first, err := acquireLock(context.Background(), path, findLive)
	require.NoError(t, err)

	_, err = acquireLock(context.Background(), path, findLive)
	require.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, first.Release())

	second, err := acquireLock(context.Background(), path, findLive)
	require.NoError(t, err)
	require.NotEqual(t, first.RunID(), second.RunID())
	require.NoError(t, second.Release())
}

// TestLockLiveForeignMarker refuses a marker held by another live process.
func TestLockLiveForeignMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	writeMarker(t, path, Marker{PID: livePID, RunID: uuid.NewString(), StartedAt: time.Now()})

	_, err := acquireLock(context.Background(), path, findLive)
	require.ErrorIs(t, err, ErrRunInProgress)
	require.FileExists(t, path)
}

// TestLockStaleMarker recovers from a marker left by a dead process.
func TestLockStaleMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	stale := uuid.NewString()
	writeMarker(t, path, Marker{PID: livePID + 1, RunID: stale, StartedAt: time.Now().Add(-time.Hour)})

	lock, err := acquireLock(context.Background(), path, findLive)
	require.NoError(t, err)
	require.NotEqual(t, stale, lock.RunID())
	require.NoError(t, lock.Release())
}

// TestLockFinderError keeps the marker when liveness cannot be determined.
func TestLockFinderError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	writeMarker(t, path, Marker{PID: livePID + 1, RunID: uuid.NewString()})

	failing := func(int) (ps.Process, error) { return nil, errors.New("no /proc") }

	_, err := acquireLock(context.Background(), path, failing)
	require.ErrorIs(t, err, ErrRunInProgress)
}

// TestLockFreshUnreadableMarker treats a just-created empty marker as held.
func TestLockFreshUnreadableMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := acquireLock(context.Background(), path, findLive)
	require.ErrorIs(t, err, ErrRunInProgress)

	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	lock, err := acquireLock(context.Background(), path, findLive)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

// TestReleaseForeignMarker leaves a marker that belongs to another run.
func TestReleaseForeignMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)

	lock, err := acquireLock(context.Background(), path, findLive)
	require.NoError(t, err)

	writeMarker(t, path, Marker{PID: livePID, RunID: uuid.NewString()})

	require.NoError(t, lock.Release())
	require.FileExists(t, path)
}

// TestHoldSharesLockWithNestedCalls acquires once per run and per workspace.
func TestHoldSharesLockWithNestedCalls(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)

	ctx, release, err := hold(context.Background(), path, findLive)
	require.NoError(t, err)

	outer, err := ReadMarker(path)
	require.NoError(t, err)

	nestedCtx, nestedRelease, err := hold(ctx, path, findLive)
	require.NoError(t, err)
	require.Equal(t, ctx, nestedCtx)

	// Releasing the nested hold keeps the marker of the run.
	nestedRelease()

	current, err := ReadMarker(path)
	require.NoError(t, err)
	require.Equal(t, outer.RunID, current.RunID)

	// Another workspace gets its own marker.
	otherPath := filepath.Join(t.TempDir(), MarkerFilename)
	_, otherRelease, err := hold(ctx, otherPath, findLive)
	require.NoError(t, err)
	require.FileExists(t, otherPath)
	otherRelease()
	require.NoFileExists(t, otherPath)

	release()
	require.NoFileExists(t, path)
}

// TestHoldRefusesLiveMarker does not inherit a marker it did not create.
func TestHoldRefusesLiveMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)
	writeMarker(t, path, Marker{PID: livePID, RunID: "packaging", StartedAt: time.Now()})

	_, release, err := hold(context.Background(), path, findLive)
	require.ErrorIs(t, err, ErrRunInProgress)
	require.NotNil(t, release)
	release()
	require.FileExists(t, path)
}
