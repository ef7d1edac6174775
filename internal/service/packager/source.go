package packager

import (
	"context"
	"runtime"
	"slices"

	"github.com/oshokin/quaso-pack/internal/archive"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
	"github.com/oshokin/quaso-pack/internal/service/common"
)

// SourceOptions contains inputs for packaging a template's source tree.
type SourceOptions struct {
	// Config is the loaded workspace configuration.
	Config *config.Config
	// Template is the template to archive; empty selects the default template.
	Template string
}

// RunSource writes <template>-template.zip from the template sources, leaving
// out staging output, wasm-pack output, packed assets and everything the
// cleaner would remove.
func RunSource(ctx context.Context, opts *SourceOptions) (*archive.Result, error) {
	ctx = logger.WithName(ctx, "packager")

	ctx, release, err := common.Hold(ctx, opts.Config.Workspace)
	if err != nil {
		return nil, err
	}

	defer release()

	r := resolver.New(opts.Config, runtime.GOOS)

	tpl, err := r.Template(opts.Template)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "template", tpl.Name)
	logger.Info(ctx, "Archiving template sources")

	return archive.PackSource(ctx, tpl.Root, r.SourceArchive(tpl), SourceExcludes(opts.Config),
		archive.Options{Compression: opts.Config.Compression})
}

// SourceExcludes returns the names left out of source archives.
func SourceExcludes(cfg *config.Config) []string {
	excludes := slices.Clone(cfg.SourceExcludes)
	excludes = append(excludes, cfg.DistDir)
	excludes = append(excludes, cfg.Clean.OutputDirs...)
	excludes = append(excludes, cfg.Clean.Lockfiles...)
	slices.Sort(excludes)

	return slices.Compact(excludes)
}
