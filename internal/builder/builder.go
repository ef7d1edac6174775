package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
)

// diagnosticsLines is how many trailing output lines a BuildFailure keeps.
const diagnosticsLines = 40

// Builder is the Build Invoker.
type Builder struct {
	runner CommandRunner
}

// New creates a Builder. A nil runner selects ExecRunner.
func New(runner CommandRunner) *Builder {
	if runner == nil {
		runner = new(ExecRunner)
	}

	return &Builder{runner: runner}
}

// Runner returns the command runner used by the builder.
func (b *Builder) Runner() CommandRunner {
	return b.runner
}

// Build compiles the resolved template for its target.
//
// Previously built artifacts are deleted first, so a failed or interrupted
// build leaves nothing for the stage assembler to pick up. The first failing
// command aborts the build with a BuildFailure.
func (b *Builder) Build(ctx context.Context, res *resolver.Resolution) error {
	ctx = logger.WithKV(ctx, "template", res.Template.Name, "platform", res.Target.Platform)

	if err := removeBuilt(res); err != nil {
		return err
	}

	started := time.Now()

	for _, argv := range res.Target.Build {
		cmd := Command{Dir: res.Template.Root, Args: argv}

		logger.InfoKV(ctx, "Running build command", "command", cmd.String())

		output, err := b.runner.Run(ctx, cmd)
		if err != nil {
			return &pack.BuildFailure{
				Template:    res.Template.Name,
				Platform:    res.Target.Platform,
				Command:     cmd.String(),
				Diagnostics: Diagnostics(output),
				Err:         err,
			}
		}

		logger.DebugKV(ctx, "Build command output", "command", cmd.String(), "output", string(output))
	}

	logger.InfoKV(ctx, "Build finished", "elapsed", time.Since(started).Round(time.Millisecond))

	return nil
}

// removeBuilt deletes the outputs of earlier builds for the resolved target.
func removeBuilt(res *resolver.Resolution) error {
	for _, artifact := range res.Target.BuiltArtifacts() {
		path := filepath.Join(res.Template.Root, filepath.FromSlash(artifact.Source))

		if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale artifact %s: %w", path, err)
		}
	}

	return nil
}

// Diagnostics returns the trailing part of command output kept in errors.
func Diagnostics(output []byte) string {
	return tail(string(output), diagnosticsLines)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}

	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n")
}
