package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// Resolution is a concrete pipeline variant for one (template, platform) pair.
type Resolution struct {
	// Template is the resolved template.
	Template *pack.Template
	// Target holds the target with every placeholder expanded for Template.
	Target *pack.Target
	// Stage is the absolute staging directory, <template>/<dist>/<label>.
	Stage string
	// Archive is the absolute path of the final archive.
	Archive string
}

// Resolver maps user input onto templates and targets. It never writes.
type Resolver struct {
	cfg     *config.Config
	goos    string
	targets map[pack.Platform]*pack.Target
}

// New creates a resolver for the workspace described by cfg, building for goos.
func New(cfg *config.Config, goos string) *Resolver {
	return &Resolver{
		cfg:     cfg,
		goos:    goos,
		targets: cfg.ResolveTargets(goos),
	}
}

// GOOS returns the operating system the resolver builds for.
func (r *Resolver) GOOS() string {
	return r.goos
}

// Resolve returns the pipeline variant for the given platform and template.
// An empty platform selects desktop, an empty template the configured default.
func (r *Resolver) Resolve(platform, template string) (*Resolution, error) {
	p, err := pack.ParsePlatform(platform)
	if err != nil {
		return nil, err
	}

	tpl, err := r.Template(template)
	if err != nil {
		return nil, err
	}

	if !tpl.Supports(p) {
		return nil, &pack.UnsupportedPlatformError{Template: tpl.Name, Platform: p}
	}

	target := r.targets[p].Expand(tpl, r.goos)

	return &Resolution{
		Template: tpl,
		Target:   target,
		Stage:    filepath.Join(tpl.Root, r.cfg.DistDir, target.Label),
		Archive:  filepath.Join(r.cfg.OutputPath(), pack.ArchiveName(tpl.Name, target.Label)),
	}, nil
}

// Template looks a template up by name. An empty name selects the default template.
func (r *Resolver) Template(name string) (*pack.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.cfg.DefaultTemplate
	}

	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, &pack.UnknownTemplateError{Name: name}
	}

	root := filepath.Join(r.cfg.TemplatesPath(), name)

	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, &pack.UnknownTemplateError{Name: name}
	} else if err != nil {
		return nil, fmt.Errorf("stat template %s: %w", name, err)
	}

	return &pack.Template{
		Name:      name,
		Root:      root,
		Platforms: r.cfg.TemplatePlatforms(name),
	}, nil
}

// Templates lists every template in the workspace, sorted by name.
// Hidden directories are ignored.
func (r *Resolver) Templates() ([]*pack.Template, error) {
	entries, err := os.ReadDir(r.cfg.TemplatesPath())
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	templates := make([]*pack.Template, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		templates = append(templates, &pack.Template{
			Name:      entry.Name(),
			Root:      filepath.Join(r.cfg.TemplatesPath(), entry.Name()),
			Platforms: r.cfg.TemplatePlatforms(entry.Name()),
		})
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})

	return templates, nil
}

// SourceArchive returns the path of the source archive for a template.
func (r *Resolver) SourceArchive(tpl *pack.Template) string {
	return filepath.Join(r.cfg.OutputPath(), pack.SourceArchiveName(tpl.Name))
}
