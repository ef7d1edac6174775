//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/logger"
)

const (
	// MarkerFilename marks that a packaging run is in progress in the workspace.
	MarkerFilename = ".quaso-pack.lock"

	// markerGracePeriod covers the window between creating the marker and writing it.
	markerGracePeriod = 5 * time.Second

	// acquireAttempts bounds stale marker recovery.
	acquireAttempts = 2
)

var (
	// ErrRunInProgress is returned when another live process holds the run marker.
	ErrRunInProgress = errors.New("another packaging run is in progress")
	// errEmptyMarker is returned for a marker file without a run id.
	errEmptyMarker = errors.New("marker has no run id")
)

// Marker is the content of the run marker file.
type Marker struct {
	PID       int       `yaml:"pid"`
	RunID     string    `yaml:"run_id"`
	StartedAt time.Time `yaml:"started_at"`
}

// ProcessFinder looks a process up by pid. It returns nil when there is none.
type ProcessFinder func(pid int) (ps.Process, error)

// Lock is a held run marker.
type Lock struct {
	path   string
	marker Marker
}

// lockKey carries the held Lock in a context.
type lockKey struct{}

// Hold acquires the run marker of workspace unless ctx already carries it. A
// marker left by a process that no longer runs is removed; a live one yields
// ErrRunInProgress.
//
// The returned context carries the lock and tags log lines with the run id, so
// nested operations of the same run share it. release removes the marker when
// this call created it and is a no-op for an inherited lock.
func Hold(ctx context.Context, workspace string) (context.Context, func(), error) {
	return hold(ctx, filepath.Join(workspace, MarkerFilename), ps.FindProcess)
}

func hold(ctx context.Context, path string, find ProcessFinder) (context.Context, func(), error) {
	if held, ok := ctx.Value(lockKey{}).(*Lock); ok && held.path == path {
		return ctx, func() {}, nil
	}

	lock, err := acquireLock(ctx, path, find)
	if err != nil {
		return ctx, func() {}, err
	}

	ctx = logger.WithKV(context.WithValue(ctx, lockKey{}, lock), "run_id", lock.RunID())

	release := func() {
		if err := lock.Release(); err != nil {
			logger.ErrorKV(ctx, "Unable to release run marker", "error", err)
		}
	}

	return ctx, release, nil
}

func acquireLock(ctx context.Context, path string, find ProcessFinder) (*Lock, error) {
	marker := Marker{
		PID:       os.Getpid(),
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	data, err := yaml.Marshal(&marker)
	if err != nil {
		return nil, fmt.Errorf("encode run marker: %w", err)
	}

	for i := 0; i < acquireAttempts; i++ {
		created, err := createExclusive(path, data)
		if err != nil {
			return nil, err
		}

		if created {
			logger.DebugKV(ctx, "Run marker acquired", "path", path, "run_id", marker.RunID)

			return &Lock{path: path, marker: marker}, nil
		}

		if err = checkExisting(ctx, path, find); err != nil {
			return nil, err
		}
	}

	return nil, ErrRunInProgress
}

// createExclusive writes data to path unless the file already exists.
func createExclusive(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.DefaultFilePermissions)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("create run marker: %w", err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return false, fmt.Errorf("write run marker: %w", err)
	}

	if err = f.Close(); err != nil {
		_ = os.Remove(path)

		return false, fmt.Errorf("write run marker: %w", err)
	}

	return true, nil
}

// checkExisting returns ErrRunInProgress for a live marker and removes a stale one.
func checkExisting(ctx context.Context, path string, find ProcessFinder) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat run marker: %w", err)
	}

	existing, err := ReadMarker(path)
	if err != nil {
		if time.Since(info.ModTime()) <= markerGracePeriod {
			return ErrRunInProgress
		}

		logger.WarnKV(ctx, "Unreadable run marker, removing", "path", path, "error", err)
	} else {
		alive, findErr := isAlive(existing.PID, find)
		if findErr != nil || alive {
			return fmt.Errorf("%w: pid %d, run %s, started at %s",
				ErrRunInProgress, existing.PID, existing.RunID, existing.StartedAt.Format(time.RFC3339))
		}

		logger.InfoKV(ctx, "Removing stale run marker", "pid", existing.PID, "run_id", existing.RunID)
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale run marker: %w", err)
	}

	return nil
}

func isAlive(pid int, find ProcessFinder) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	if pid == os.Getpid() {
		return true, nil
	}

	process, err := find(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

// ReadMarker decodes the run marker at path.
func ReadMarker(path string) (*Marker, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	marker := &Marker{}
	if err = yaml.Unmarshal(contents, marker); err != nil {
		return nil, fmt.Errorf("decode run marker: %w", err)
	}

	if marker.RunID == "" {
		return nil, fmt.Errorf("decode run marker: %w", errEmptyMarker)
	}

	return marker, nil
}

// RunID returns the identifier of the run holding the lock.
func (l *Lock) RunID() string {
	return l.marker.RunID
}

// Release removes the run marker if it still belongs to this run.
func (l *Lock) Release() error {
	current, err := ReadMarker(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	if current.RunID != l.marker.RunID {
		return nil
	}

	if err = os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run marker: %w", err)
	}

	return nil
}
