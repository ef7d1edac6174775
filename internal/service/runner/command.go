package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"runtime"

	"github.com/oshokin/quaso-pack/internal/builder"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
	"github.com/oshokin/quaso-pack/internal/service/common"
	"github.com/oshokin/quaso-pack/internal/stage"
)

// Options contains inputs for running a template locally.
type Options struct {
	// Config is the loaded workspace configuration.
	Config *config.Config
	// Template is the template to run; empty selects the default template.
	Template string
	// Platform is the platform to run; empty selects desktop.
	Platform string
	// Watch re-stages web builds when template files change.
	Watch bool
	// GOOS is the host the desktop target is built for; empty means runtime.GOOS.
	GOOS string
	// Build compiles the pair; nil runs the Build Invoker with Runner.
	Build func(ctx context.Context, res *resolver.Resolution) error
	// Runner starts commands, including the built desktop binary; nil uses os/exec.
	Runner builder.CommandRunner
	// Ready, if set, is called with the listening address once web serving starts.
	Ready func(addr net.Addr)
}

// errNoExecutable is returned when a native target declares no built executable.
var errNoExecutable = errors.New("target declares no built executable")

// Run builds the template and runs it: desktop builds are executed in the
// template root, web builds are staged and served over HTTP until ctx ends.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "runner")

	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	res, err := resolver.New(opts.Config, goos).Resolve(opts.Platform, opts.Template)
	if err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "template", res.Template.Name, "platform", res.Target.Platform)

	b := builder.New(opts.Runner)

	build := opts.Build
	if build == nil {
		build = b.Build
	}

	err = locked(ctx, opts.Config.Workspace, func(ctx context.Context) error {
		if err := build(ctx, res); err != nil {
			return err
		}

		if res.Target.Has(pack.CapNativeOS) {
			return nil
		}

		_, err := stage.Assemble(ctx, res)

		return err
	})
	if err != nil {
		return err
	}

	if res.Target.Has(pack.CapNativeOS) {
		return runNative(ctx, b.Runner(), res)
	}

	return serve(ctx, opts, res)
}

// locked runs fn while holding the workspace run marker. The game itself and
// the server run unlocked, so packaging is only blocked while files change.
func locked(ctx context.Context, workspace string, fn func(ctx context.Context) error) error {
	ctx, release, err := common.Hold(ctx, workspace)
	if err != nil {
		return err
	}

	defer release()

	return fn(ctx)
}

// runNative starts the built executable attached to the terminal.
func runNative(ctx context.Context, runner builder.CommandRunner, res *resolver.Resolution) error {
	built := res.Target.BuiltArtifacts()
	if len(built) == 0 {
		return errNoExecutable
	}

	executable := filepath.Join(res.Template.Root, filepath.FromSlash(built[0].Source))
	cmd := builder.Command{Dir: res.Template.Root, Args: []string{executable}, Interactive: true}

	logger.InfoKV(ctx, "Starting game", "executable", executable)

	if _, err := runner.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("run %s: %w", executable, err)
	}

	return nil
}
