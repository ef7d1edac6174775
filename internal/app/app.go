package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/oshokin/quaso-pack/internal/builder"
	"github.com/oshokin/quaso-pack/internal/cleaner"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/ops"
	"github.com/oshokin/quaso-pack/internal/resolver"
	"github.com/oshokin/quaso-pack/internal/service/checker"
	"github.com/oshokin/quaso-pack/internal/service/common"
	"github.com/oshokin/quaso-pack/internal/service/packager"
	"github.com/oshokin/quaso-pack/internal/service/runner"
)

// Operation names.
const (
	OpBuild           = "build"
	OpRun             = "run"
	OpPackage         = "package"
	OpPackageTemplate = "package-template"
	OpClean           = "clean"
	OpChecks          = "checks"
	OpList            = "list"
)

// Operation parameter names.
const (
	ParamTemplate = "template"
	ParamPlatform = "platform"
	ParamWatch    = "watch"
)

// App binds the workspace configuration to the operation registry.
type App struct {
	cfg          *config.Config
	registry     *ops.Registry
	out          io.Writer
	goos         string
	runner       builder.CommandRunner
	cleanOptions []cleaner.Option
}

// Option customizes an App.
type Option func(*App)

// WithOutput sets where tables and reports are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithGOOS sets the host the desktop target is built for.
func WithGOOS(goos string) Option {
	return func(a *App) {
		a.goos = goos
	}
}

// WithRunner replaces the os/exec command runner.
func WithRunner(r builder.CommandRunner) Option {
	return func(a *App) {
		a.runner = r
	}
}

// WithCleanerOptions customizes the workspace cleaner.
func WithCleanerOptions(opts ...cleaner.Option) Option {
	return func(a *App) {
		a.cleanOptions = append(a.cleanOptions, opts...)
	}
}

// New creates an App with every operation registered.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		registry: ops.NewRegistry(),
		out:      os.Stdout,
		goos:     runtime.GOOS,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.runner == nil {
		a.runner = new(builder.ExecRunner)
	}

	a.register()

	return a
}

// Registry returns the operation registry.
func (a *App) Registry() *ops.Registry {
	return a.registry
}

// Invoke runs an operation by name.
func (a *App) Invoke(ctx context.Context, name string, args ops.Args) error {
	return a.registry.Invoke(ctx, name, args)
}

func (a *App) register() {
	templateParam := ops.Param{Name: ParamTemplate, Usage: "template name (default: config default_template)"}

	a.registry.MustRegister(ops.Operation{
		Name:   OpBuild,
		Usage:  "Compile a template for one platform",
		Params: []ops.Param{templateParam, {Name: ParamPlatform, Default: "desktop", Usage: "desktop or web"}},
		Run:    a.build,
	})
	a.registry.MustRegister(ops.Operation{
		Name:  OpRun,
		Usage: "Build a template and run it locally",
		Params: []ops.Param{
			templateParam,
			{Name: ParamPlatform, Default: "desktop", Usage: "desktop or web"},
			{Name: ParamWatch, Default: "false", Usage: "re-stage web builds when sources change"},
		},
		Run: a.run,
	})
	a.registry.MustRegister(ops.Operation{
		Name:   OpPackage,
		Usage:  "Build, stage and archive a template for its platforms",
		Params: []ops.Param{templateParam, {Name: ParamPlatform, Usage: "comma-separated platforms (default: all supported)"}},
		Run:    a.pack,
	})
	a.registry.MustRegister(ops.Operation{
		Name:   OpPackageTemplate,
		Usage:  "Archive the template source tree",
		Params: []ops.Param{templateParam},
		Run:    a.packSource,
	})
	a.registry.MustRegister(ops.Operation{
		Name:  OpClean,
		Usage: "Remove build output directories and lockfiles",
		Run:   a.clean,
	})
	a.registry.MustRegister(ops.Operation{
		Name:  OpChecks,
		Usage: "Run format, build, lint and test across the workspace",
		Run:   a.checks,
	})
	a.registry.MustRegister(ops.Operation{
		Name:  OpList,
		Usage: "List templates with their platforms and archives",
		Run:   a.list,
	})
}

func (a *App) build(ctx context.Context, args ops.Args) error {
	res, err := resolver.New(a.cfg, a.goos).Resolve(args.Get(ParamPlatform), args.Get(ParamTemplate))
	if err != nil {
		return err
	}

	// Inside package or run the caller already holds the marker.
	ctx, release, err := common.Hold(ctx, a.cfg.Workspace)
	if err != nil {
		return err
	}

	defer release()

	return builder.New(a.runner).Build(logger.WithName(ctx, "builder"), res)
}

// buildByName routes a pipeline's build step through the build operation.
func (a *App) buildByName(ctx context.Context, res *resolver.Resolution) error {
	return a.registry.Invoke(ctx, OpBuild, ops.Args{
		ParamTemplate: res.Template.Name,
		ParamPlatform: string(res.Target.Platform),
	})
}

func (a *App) run(ctx context.Context, args ops.Args) error {
	return runner.Run(ctx, &runner.Options{
		Config:   a.cfg,
		Template: args.Get(ParamTemplate),
		Platform: args.Get(ParamPlatform),
		Watch:    args.Bool(ParamWatch),
		GOOS:     a.goos,
		Build:    a.buildByName,
		Runner:   a.runner,
	})
}

func (a *App) pack(ctx context.Context, args ops.Args) error {
	_, err := packager.Run(ctx, &packager.Options{
		Config:    a.cfg,
		Template:  args.Get(ParamTemplate),
		Platforms: splitList(args.Get(ParamPlatform)),
		GOOS:      a.goos,
		Build:     a.buildByName,
		Out:       a.out,
	})

	return err
}

func (a *App) packSource(ctx context.Context, args ops.Args) error {
	result, err := packager.RunSource(ctx, &packager.SourceOptions{
		Config:   a.cfg,
		Template: args.Get(ParamTemplate),
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.out, "%s (%d files, %s)\n", result.Path, result.Files, result.Digest)

	return err
}

func (a *App) clean(ctx context.Context, _ ops.Args) error {
	report, err := cleaner.New(a.cfg.Workspace, a.cfg.Clean, a.cleanOptions...).Clean(ctx)
	if report != nil {
		_, _ = fmt.Fprintf(a.out, "removed %d item(s), %d failed\n", len(report.Removed), len(report.Failed))
	}

	return err
}

func (a *App) checks(ctx context.Context, _ ops.Args) error {
	return checker.Run(ctx, &checker.Options{
		Config: a.cfg,
		GOOS:   a.goos,
		Runner: a.runner,
	})
}

func splitList(s string) []string {
	var result []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}

	return result
}
