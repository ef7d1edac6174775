package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
)

// debounce groups the burst of events a single save produces.
const debounce = 200 * time.Millisecond

// sources are the staging inputs of a target, as absolute paths.
type sources struct {
	files map[string]struct{}
	dirs  []string
}

func sourcesOf(res *resolver.Resolution) *sources {
	s := &sources{files: make(map[string]struct{})}

	for _, a := range res.Target.Artifacts {
		path := filepath.Join(res.Template.Root, filepath.FromSlash(a.Source))
		if a.Dir {
			s.dirs = append(s.dirs, path)
		} else {
			s.files[path] = struct{}{}
		}
	}

	return s
}

// relevant reports whether a change to path affects the stage.
func (s *sources) relevant(path string) bool {
	if _, ok := s.files[path]; ok {
		return true
	}

	for _, dir := range s.dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// watchDirs returns the directories to watch: every parent of a file source
// and every directory source tree.
func (s *sources) watchDirs() []string {
	seen := make(map[string]struct{})

	var dirs []string

	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}

		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}

		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for file := range s.files {
		add(filepath.Dir(file))
	}

	for _, root := range s.dirs {
		add(filepath.Dir(root))

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				add(path)
			}

			return nil
		})
	}

	return dirs
}

// watch calls restage after changes to the staging inputs settle, until ctx is done.
// A failed restage is logged and watching continues.
func watch(ctx context.Context, res *resolver.Resolution, restage func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		_ = watcher.Close()
	}()

	src := sourcesOf(res)

	for _, dir := range src.watchDirs() {
		if err = watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	logger.InfoKV(ctx, "Watching for changes", "template", res.Template.Root)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !src.relevant(event.Name) {
				continue
			}

			// New directories inside a watched tree need their own watch.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

			logger.DebugKV(ctx, "Change detected", "path", event.Name, "op", event.Op.String())

			if timer != nil {
				timer.Stop()
			}

			timer = time.NewTimer(debounce)
			pending = timer.C
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			if errors.Is(watchErr, fsnotify.ErrEventOverflow) {
				pending = time.After(0)
			}

			logger.WarnKV(ctx, "Watcher error", "error", watchErr)
		case <-pending:
			pending = nil

			if err = restage(ctx); err != nil {
				logger.ErrorKV(ctx, "Restage failed", "error", err)

				continue
			}

			logger.Info(ctx, "Stage refreshed")
		}
	}
}
