package cleaner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"
	"go.uber.org/multierr"

	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"
)

// commLength is the longest process name Linux reports; longer names are truncated.
const commLength = 15

// errProcessRunning marks a directory whose executable is still running.
var errProcessRunning = errors.New("executable is running")

// ProcessLister returns the running processes.
type ProcessLister func() ([]ps.Process, error)

// RemoveFunc deletes a file or a directory tree.
type RemoveFunc func(path string) error

// Report lists what a cleanup did, with slash-separated paths relative to the root.
type Report struct {
	Removed []string
	Failed  []string
}

// Cleaner removes generated build output from a workspace.
type Cleaner struct {
	root      string
	dirs      map[string]struct{}
	files     map[string]struct{}
	processes ProcessLister
	remove    RemoveFunc
}

// Option customizes a Cleaner.
type Option func(*Cleaner)

// WithProcessLister replaces the go-ps process listing.
func WithProcessLister(lister ProcessLister) Option {
	return func(c *Cleaner) {
		c.processes = lister
	}
}

// WithRemove replaces os.RemoveAll.
func WithRemove(remove RemoveFunc) Option {
	return func(c *Cleaner) {
		c.remove = remove
	}
}

// New creates a cleaner for the workspace at root.
func New(root string, cfg config.CleanConfig, opts ...Option) *Cleaner {
	c := &Cleaner{
		root:      root,
		dirs:      toSet(cfg.OutputDirs),
		files:     toSet(cfg.Lockfiles),
		processes: ps.Processes,
		remove:    os.RemoveAll,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// candidate is a matched workspace entry.
type candidate struct {
	path string
	rel  string
	dir  bool
}

// Clean removes every directory named in OutputDirs and every file named in
// Lockfiles, at any depth. Only exact names match and matched directories are
// not descended into. A failure on one item does not stop the others; all
// failures are returned together once every item was attempted.
func (c *Cleaner) Clean(ctx context.Context) (*Report, error) {
	ctx = logger.WithName(ctx, "cleaner")

	candidates, errs := c.scan()
	report := &Report{}

	if len(candidates) == 0 && errs == nil {
		logger.Info(ctx, "Nothing to clean")

		return report, nil
	}

	var running map[string]struct{}

	for _, item := range candidates {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}

		if item.dir && running == nil {
			running = c.runningExecutables(ctx)
		}

		if err := c.removeItem(item, running); err != nil {
			logger.ErrorKV(ctx, "Unable to remove", "path", item.rel, "error", err)

			report.Failed = append(report.Failed, item.rel)
			errs = multierr.Append(errs, err)

			continue
		}

		logger.InfoKV(ctx, "Removed", "path", item.rel)

		report.Removed = append(report.Removed, item.rel)
	}

	return report, errs
}

// scan collects matches without modifying the tree.
func (c *Cleaner) scan() ([]candidate, error) {
	var (
		candidates []candidate
		errs       error
	)

	walkErr := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.root {
				return err
			}

			errs = multierr.Append(errs, fmt.Errorf("scan %s: %w", path, err))

			return nil
		}

		if path == c.root {
			return nil
		}

		_, dirMatch := c.dirs[d.Name()]
		_, fileMatch := c.files[d.Name()]

		switch {
		case d.IsDir() && dirMatch:
			candidates = append(candidates, candidate{path: path, rel: c.rel(path), dir: true})

			return filepath.SkipDir
		case !d.IsDir() && fileMatch:
			candidates = append(candidates, candidate{path: path, rel: c.rel(path)})
		}

		return nil
	})
	if walkErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("scan workspace: %w", walkErr))
	}

	return candidates, errs
}

func (c *Cleaner) removeItem(item candidate, running map[string]struct{}) error {
	if item.dir {
		if exe, busy := c.heldBy(item.path, running); busy {
			return &pack.ResourceBusyError{Path: item.path, Err: fmt.Errorf("%w: %s", errProcessRunning, exe)}
		}
	}

	err := c.remove(item.path)
	if err == nil {
		return nil
	}

	if isBusy(err) {
		return &pack.ResourceBusyError{Path: item.path, Err: err}
	}

	return fmt.Errorf("remove %s: %w", item.rel, err)
}

// runningExecutables returns the names of all processes except this one.
// A failed listing only disables the check; removal errors still catch busy files.
func (c *Cleaner) runningExecutables(ctx context.Context) map[string]struct{} {
	running := make(map[string]struct{})

	processes, err := c.processes()
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes", "error", err)

		return running
	}

	self := os.Getpid()

	for _, p := range processes {
		if p.Pid() == self || p.Executable() == "" {
			continue
		}

		running[p.Executable()] = struct{}{}
	}

	return running
}

// heldBy reports an executable under dir whose name matches a running process.
func (c *Cleaner) heldBy(dir string, running map[string]struct{}) (string, bool) {
	if len(running) == 0 {
		return "", false
	}

	var found string

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isExecutable(d) {
			return nil //nolint:nilerr // Unreadable entries surface when removing.
		}

		if matchesProcess(d.Name(), running) {
			found = path

			return filepath.SkipAll
		}

		return nil
	})

	return found, found != ""
}

func matchesProcess(name string, running map[string]struct{}) bool {
	if _, ok := running[name]; ok {
		return true
	}

	if len(name) > commLength {
		_, ok := running[name[:commLength]]

		return ok
	}

	return false
}

func isExecutable(d fs.DirEntry) bool {
	if strings.EqualFold(filepath.Ext(d.Name()), ".exe") {
		return true
	}

	info, err := d.Info()

	return err == nil && info.Mode().IsRegular() && info.Mode()&0o111 != 0
}

func (c *Cleaner) rel(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}

	return set
}
