package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/oshokin/quaso-pack/internal/archive"
	"github.com/oshokin/quaso-pack/internal/builder"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/repository/release"
	"github.com/oshokin/quaso-pack/internal/resolver"
	"github.com/oshokin/quaso-pack/internal/service/common"
	"github.com/oshokin/quaso-pack/internal/stage"
	"github.com/oshokin/quaso-pack/internal/version"
)

// BuildFunc compiles one resolved pair.
type BuildFunc func(ctx context.Context, res *resolver.Resolution) error

// Options contains inputs for the packager entry point.
type Options struct {
	// Config is the loaded workspace configuration.
	Config *config.Config
	// Template is the template to package; empty selects the default template.
	Template string
	// Platforms limits packaging to the named platforms; empty means every supported one.
	Platforms []string
	// GOOS is the host the desktop target is built for; empty means runtime.GOOS.
	GOOS string
	// Build compiles a pair; nil runs the Build Invoker with Runner.
	Build BuildFunc
	// Runner executes build commands when Build is nil.
	Runner builder.CommandRunner
	// Repository stores the release manifest; nil uses the manifest in the output directory.
	Repository release.Repository
	// Out receives the summary table; nil disables it.
	Out io.Writer
}

// packager runs the build, stage and archive steps for every requested platform.
// It is unexported; callers should use Run, which holds the run marker.
type packager struct {
	cfg     *config.Config
	build   BuildFunc
	repo    release.Repository
	actor   *pack.Actor
	version string
}

// Run packages a template once per requested platform, in order.
//
// A failing pair aborts the run. Its archive and manifest entry from any
// earlier run are removed so no stale archive outlives a failed package.
func Run(ctx context.Context, opts *Options) ([]*pack.Release, error) {
	ctx = logger.WithName(ctx, "packager")

	ctx, release, err := common.Hold(ctx, opts.Config.Workspace)
	if err != nil {
		return nil, err
	}

	defer release()

	resolutions, err := resolveAll(opts)
	if err != nil {
		return nil, err
	}

	p := newPackager(ctx, opts)
	releases := make([]*pack.Release, 0, len(resolutions))

	for _, res := range resolutions {
		rel, err := p.packagePair(ctx, res)
		if err != nil {
			p.discard(ctx, res)

			return releases, fmt.Errorf("package %s for %s: %w", res.Template.Name, res.Target.Platform, err)
		}

		releases = append(releases, rel)
	}

	if opts.Out != nil {
		if err = WriteSummary(opts.Out, releases); err != nil {
			return releases, fmt.Errorf("write summary: %w", err)
		}
	}

	logger.InfoKV(ctx, "Packaging completed", "archives", len(releases))

	return releases, nil
}

// resolveAll resolves every requested pair before anything is built.
func resolveAll(opts *Options) ([]*resolver.Resolution, error) {
	r := resolver.New(opts.Config, goosOf(opts.GOOS))

	tpl, err := r.Template(opts.Template)
	if err != nil {
		return nil, err
	}

	platforms := opts.Platforms
	if len(platforms) == 0 {
		for _, p := range tpl.Platforms {
			platforms = append(platforms, string(p))
		}
	}

	resolutions := make([]*resolver.Resolution, 0, len(platforms))

	for _, platform := range platforms {
		res, err := r.Resolve(platform, tpl.Name)
		if err != nil {
			return nil, err
		}

		resolutions = append(resolutions, res)
	}

	return resolutions, nil
}

func newPackager(ctx context.Context, opts *Options) *packager {
	p := &packager{
		cfg:     opts.Config,
		build:   opts.Build,
		repo:    opts.Repository,
		version: version.Short(),
	}

	if p.build == nil {
		b := builder.New(opts.Runner)
		p.build = b.Build
	}

	if p.repo == nil {
		p.repo = release.NewFileRepository(ManifestPath(opts.Config))
	}

	actor, err := common.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect actor", "error", err)
	} else {
		p.actor = actor
	}

	return p
}

// packagePair runs build, stage and archive for one pair and records the release.
func (p *packager) packagePair(ctx context.Context, res *resolver.Resolution) (*pack.Release, error) {
	ctx = logger.WithKV(ctx, "template", res.Template.Name, "platform", res.Target.Platform)

	logger.Info(ctx, "Building")

	if err := p.build(ctx, res); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Staging")

	staged, err := stage.Assemble(ctx, res)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Archiving")

	written, err := archive.Pack(ctx, res.Stage, res.Archive, archive.Options{Compression: p.cfg.Compression})
	if err != nil {
		return nil, err
	}

	rel := &pack.Release{
		Template:    res.Template.Name,
		Platform:    res.Target.Platform,
		Label:       res.Target.Label,
		Archive:     pack.ArchiveName(res.Template.Name, res.Target.Label),
		Checksum:    written.Checksum,
		Digest:      written.Digest.String(),
		StageDigest: staged.Digest.String(),
		Size:        written.Size,
		Files:       written.Files,
		Actor:       p.actor.Clone(),
		PackagedAt:  time.Now().UTC(),
		Version:     p.version,
	}

	if err = p.repo.Put(ctx, rel); err != nil {
		return nil, fmt.Errorf("record release: %w", err)
	}

	return rel, nil
}

// discard removes the archive and manifest entry of a failed pair.
func (p *packager) discard(ctx context.Context, res *resolver.Resolution) {
	if err := os.Remove(res.Archive); err == nil {
		logger.InfoKV(ctx, "Removed stale archive", "path", res.Archive)
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.ErrorKV(ctx, "Unable to remove stale archive", "path", res.Archive, "error", err)
	}

	if err := p.repo.Remove(ctx, res.Template.Name, res.Target.Label); err != nil {
		logger.ErrorKV(ctx, "Unable to update release manifest", "error", err)
	}
}

// ManifestPath returns the release manifest location for cfg.
func ManifestPath(cfg *config.Config) string {
	return filepath.Join(cfg.OutputPath(), release.ManifestFilename)
}

func goosOf(goos string) string {
	if goos == "" {
		return runtime.GOOS
	}

	return goos
}
