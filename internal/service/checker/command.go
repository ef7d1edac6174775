package checker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/oshokin/quaso-pack/internal/builder"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
)

// Check step names, in execution order.
const (
	StepFormat = "format"
	StepBuild  = "build"
	StepLint   = "lint"
	StepTest   = "test"
)

// rootProject names the workspace root in reports.
const rootProject = "."

// rootManifest marks a workspace root that is itself a project.
const rootManifest = "Cargo.toml"

// Options controls the checks run.
type Options struct {
	// Config is the loaded workspace configuration.
	Config *config.Config
	// GOOS is the host the desktop target is built for; empty means runtime.GOOS.
	GOOS string
	// Runner executes every command; nil runs them with os/exec.
	Runner builder.CommandRunner
}

// CheckError names the project and step that failed.
type CheckError struct {
	Project     string
	Step        string
	Command     string
	Diagnostics string
	Err         error
}

func (e *CheckError) Error() string {
	msg := fmt.Sprintf("check %s failed in %s: %v", e.Step, e.Project, e.Err)
	if e.Diagnostics != "" {
		msg += "\n" + e.Diagnostics
	}

	return msg
}

// Unwrap returns the underlying failure.
func (e *CheckError) Unwrap() error { return e.Err }

// errNoProjects is returned when neither the root nor any template can be checked.
var errNoProjects = errors.New("nothing to check: no root project and no templates")

// Run checks the root project and then every template, stopping at the first failure.
//
// Each project runs format, build, lint and test in that order. The root is
// built with the configured commands per platform, templates with the Build
// Invoker for every platform they support.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "checks")

	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	b := builder.New(opts.Runner)
	r := resolver.New(opts.Config, goos)

	templates, err := r.Templates()
	if err != nil {
		return err
	}

	checked := 0

	// The root goes first when it is a project of its own.
	if _, err = os.Stat(filepath.Join(opts.Config.Workspace, rootManifest)); err == nil {
		if err = checkRoot(ctx, b.Runner(), opts.Config); err != nil {
			return err
		}

		checked++
	} else {
		logger.InfoKV(ctx, "Root is not a project, skipping", "manifest", rootManifest)
	}

	for _, tpl := range templates {
		if err = checkTemplate(ctx, b, r, opts.Config, tpl); err != nil {
			return err
		}

		checked++
	}

	if checked == 0 {
		return errNoProjects
	}

	logger.InfoKV(ctx, "All checks passed", "projects", checked)

	return nil
}

func checkRoot(ctx context.Context, runner builder.CommandRunner, cfg *config.Config) error {
	ctx = logger.WithKV(ctx, "project", rootProject)
	dir := cfg.Workspace

	if err := runStep(ctx, runner, rootProject, StepFormat, dir, cfg.Checks.Format); err != nil {
		return err
	}

	// Build the root for each configured platform in a stable order.
	platforms := make([]string, 0, len(cfg.Checks.RootBuild))
	for platform := range cfg.Checks.RootBuild {
		platforms = append(platforms, platform)
	}

	sort.Strings(platforms)

	for _, platform := range platforms {
		if err := runStep(ctx, runner, rootProject, StepBuild, dir, cfg.Checks.RootBuild[platform]); err != nil {
			return err
		}
	}

	if err := runStep(ctx, runner, rootProject, StepLint, dir, cfg.Checks.Lint); err != nil {
		return err
	}

	return runStep(ctx, runner, rootProject, StepTest, dir, cfg.Checks.Test)
}

func checkTemplate(
	ctx context.Context,
	b *builder.Builder,
	r *resolver.Resolver,
	cfg *config.Config,
	tpl *pack.Template,
) error {
	ctx = logger.WithKV(ctx, "project", tpl.Name)

	if err := runStep(ctx, b.Runner(), tpl.Name, StepFormat, tpl.Root, cfg.Checks.Format); err != nil {
		return err
	}

	for _, platform := range tpl.Platforms {
		res, err := r.Resolve(string(platform), tpl.Name)
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Running check", "step", StepBuild, "platform", platform)

		if err = b.Build(ctx, res); err != nil {
			return &CheckError{Project: tpl.Name, Step: StepBuild, Err: err}
		}
	}

	if err := runStep(ctx, b.Runner(), tpl.Name, StepLint, tpl.Root, cfg.Checks.Lint); err != nil {
		return err
	}

	return runStep(ctx, b.Runner(), tpl.Name, StepTest, tpl.Root, cfg.Checks.Test)
}

// runStep runs one check command. An empty argv disables the step.
func runStep(ctx context.Context, runner builder.CommandRunner, project, step, dir string, argv []string) error {
	if len(argv) == 0 {
		logger.DebugKV(ctx, "Check disabled", "step", step)

		return nil
	}

	cmd := builder.Command{Dir: dir, Args: argv}

	logger.InfoKV(ctx, "Running check", "step", step, "command", cmd.String())

	output, err := runner.Run(ctx, cmd)
	if err != nil {
		return &CheckError{
			Project:     project,
			Step:        step,
			Command:     cmd.String(),
			Diagnostics: builder.Diagnostics(output),
			Err:         err,
		}
	}

	return nil
}
