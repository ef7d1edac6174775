package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// Config holds the workspace settings shared by every operation.
type Config struct {
	// TemplatesDir is the directory holding one subdirectory per template.
	TemplatesDir string `yaml:"templates_dir"`
	// DistDir is the per-template staging root; stages live in <dist>/<label>.
	DistDir string `yaml:"dist_dir"`
	// OutputDir receives the final archives and the release manifest.
	OutputDir string `yaml:"output_dir"`
	// DefaultTemplate is used when an operation gets no template argument.
	DefaultTemplate string `yaml:"default_template"`
	// ServeAddress is where `run --platform web` serves the stage.
	ServeAddress string `yaml:"serve_addr"`
	// Compression selects the zip method: deflate, store or zstd.
	Compression string `yaml:"compression"`
	// DesktopLabel overrides the host-derived desktop archive label.
	DesktopLabel string `yaml:"desktop_label,omitempty"`
	// SourceExcludes lists names left out of `package-template` archives.
	SourceExcludes []string `yaml:"source_excludes"`
	// Targets overrides parts of the built-in target table per platform.
	Targets map[string]TargetOverride `yaml:"targets,omitempty"`
	// Templates restricts platforms per template.
	Templates map[string]TemplateConfig `yaml:"templates,omitempty"`
	// Clean configures the workspace cleaner.
	Clean CleanConfig `yaml:"clean"`
	// Checks configures the `checks` operation.
	Checks ChecksConfig `yaml:"checks"`
	// Workspace is the absolute workspace root. It is set at runtime, never persisted.
	Workspace string `yaml:"-"`
}

// TargetOverride replaces individual parts of a built-in target.
type TargetOverride struct {
	Label     string          `yaml:"label,omitempty"`
	Build     [][]string      `yaml:"build,omitempty"`
	Artifacts []pack.Artifact `yaml:"artifacts,omitempty"`
}

// TemplateConfig holds per-template settings.
type TemplateConfig struct {
	Platforms []string `yaml:"platforms"`
}

// CleanConfig lists the exact names the cleaner removes.
type CleanConfig struct {
	OutputDirs []string `yaml:"output_dirs"`
	Lockfiles  []string `yaml:"lockfiles"`
}

// ChecksConfig holds the commands run by `checks` in every project.
type ChecksConfig struct {
	Format    []string            `yaml:"format"`
	Lint      []string            `yaml:"lint"`
	Test      []string            `yaml:"test"`
	RootBuild map[string][]string `yaml:"root_build"`
}

const (
	// DefaultConfigFilename is the workspace-local settings file.
	DefaultConfigFilename = "quaso-pack.yaml"

	// DefaultServeAddress is the local address used to serve web builds.
	DefaultServeAddress = "127.0.0.1:8080"

	// DefaultFilePermissions is the permission for files the tool writes.
	DefaultFilePermissions = 0o644

	// DefaultDirPermissions is the permission for directories the tool creates.
	DefaultDirPermissions = 0o755

	// userConfigPath is the fallback settings file under $XDG_CONFIG_HOME.
	userConfigPath = "quaso-pack/config.yaml"
)

// Supported compression methods.
const (
	CompressionDeflate = "deflate"
	CompressionStore   = "store"
	CompressionZstd    = "zstd"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errEmptySetting is returned when a required setting is blank.
	errEmptySetting = errors.New("setting must not be empty")
	// errBadPattern is returned when a clean or exclude entry is not a plain name.
	errBadPattern = errors.New("entry must be a plain file or directory name")
	// errBadCompression is returned for an unsupported zip method.
	errBadCompression = errors.New("unsupported compression")
	// errEmptyCommand is returned when a configured command has no argv.
	errEmptyCommand = errors.New("command must not be empty")
	// errBadLabel is returned for a stage label that is not a plain name or
	// is taken by another archive.
	errBadLabel = errors.New("label must be a unique plain name")
)

// hostOSes are the desktop hosts whose labels must not collide.
var hostOSes = []string{"windows", "darwin", "linux"}

// Default returns the built-in settings for a quaso workspace.
func Default() *Config {
	return &Config{
		TemplatesDir:    "templates",
		DistDir:         "dist",
		OutputDir:       "packages",
		DefaultTemplate: "fresh-start",
		ServeAddress:    DefaultServeAddress,
		Compression:     CompressionDeflate,
		SourceExcludes:  []string{"dist", "pkg", "*.pack"},
		Clean: CleanConfig{
			OutputDirs: []string{"target"},
			Lockfiles:  []string{"Cargo.lock"},
		},
		Checks: ChecksConfig{
			Format: []string{"cargo", "fmt", "--all", "--", "--check"},
			Lint:   []string{"cargo", "clippy", "--all-targets", "--", "-D", "warnings"},
			Test:   []string{"cargo", "test"},
			RootBuild: map[string][]string{
				string(pack.Desktop): {"cargo", "build", "--release"},
				string(pack.Web):     {"cargo", "build", "--release", "--target", "wasm32-unknown-unknown"},
			},
		},
	}
}

// Load reads configuration from path on top of the defaults.
//
// When path is empty or the default filename and the file does not exist,
// $XDG_CONFIG_HOME/quaso-pack/config.yaml is tried, then the defaults are used
// as is. An explicitly named file that does not exist is an error.
func Load(path string) (*Config, error) {
	explicit := path != "" && path != DefaultConfigFilename
	if path == "" {
		path = DefaultConfigFilename
	}

	return load(path, explicit)
}

// LoadWorkspace loads the settings of the workspace rooted at workspace and
// records its absolute path. An empty path selects the workspace's own
// settings file, with the same fallbacks as Load.
func LoadWorkspace(workspace, path string) (*Config, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	var cfg *Config
	if path == "" {
		cfg, err = load(filepath.Join(root, DefaultConfigFilename), false)
	} else {
		cfg, err = load(path, true)
	}

	if err != nil {
		return nil, err
	}

	cfg.Workspace = root

	return cfg, nil
}

func load(path string, explicit bool) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) && !explicit {
		contents, err = readUserConfig()
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if len(contents) > 0 {
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readUserConfig returns the per-user settings, or nothing when there are none.
func readUserConfig() ([]byte, error) {
	userPath, err := xdg.SearchConfigFile(userConfigPath)
	if err != nil {
		return nil, nil //nolint:nilerr // No user config means built-in defaults.
	}

	return os.ReadFile(filepath.Clean(userPath))
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills runtime defaults.
//
//nolint:cyclop // A flat list of independent checks reads best.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	required := map[string]string{
		"templates_dir":    cfg.TemplatesDir,
		"dist_dir":         cfg.DistDir,
		"output_dir":       cfg.OutputDir,
		"default_template": cfg.DefaultTemplate,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: %w", name, errEmptySetting)
		}
	}

	if cfg.ServeAddress == "" {
		cfg.ServeAddress = DefaultServeAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ServeAddress); err != nil {
		return fmt.Errorf("invalid serve address: %w", err)
	}

	switch cfg.Compression {
	case "":
		cfg.Compression = CompressionDeflate
	case CompressionDeflate, CompressionStore, CompressionZstd:
	default:
		return fmt.Errorf("%w: %q", errBadCompression, cfg.Compression)
	}

	for platform, override := range cfg.Targets {
		if _, err := pack.ParsePlatform(platform); err != nil {
			return fmt.Errorf("targets: %w", err)
		}

		for _, argv := range override.Build {
			if len(argv) == 0 {
				return fmt.Errorf("targets.%s.build: %w", platform, errEmptyCommand)
			}
		}
	}

	for name, tpl := range cfg.Templates {
		for _, platform := range tpl.Platforms {
			if _, err := pack.ParsePlatform(platform); err != nil {
				return fmt.Errorf("templates.%s: %w", name, err)
			}
		}
	}

	for platform := range cfg.Checks.RootBuild {
		if _, err := pack.ParsePlatform(platform); err != nil {
			return fmt.Errorf("checks.root_build: %w", err)
		}
	}

	if err := validateNames(cfg); err != nil {
		return err
	}

	return validateLabels(cfg)
}

// validateLabels keeps every stage under <template>/<dist_dir> and gives every
// platform its own stage and archive on every host.
func validateLabels(cfg *Config) error {
	if !isPlainName(cfg.DistDir) {
		return fmt.Errorf("dist_dir %q: %w", cfg.DistDir, errBadPattern)
	}

	if cfg.DesktopLabel != "" && !isPlainName(cfg.DesktopLabel) {
		return fmt.Errorf("desktop_label %q: %w", cfg.DesktopLabel, errBadLabel)
	}

	for platform, override := range cfg.Targets {
		if override.Label != "" && !isPlainName(override.Label) {
			return fmt.Errorf("targets.%s.label %q: %w", platform, override.Label, errBadLabel)
		}
	}

	for _, goos := range append(slices.Clone(hostOSes), runtime.GOOS) {
		targets := cfg.ResolveTargets(goos)
		seen := map[string]pack.Platform{pack.SourceLabel: ""}

		for _, platform := range pack.Platforms() {
			label := targets[platform].Label

			if other, taken := seen[label]; taken {
				if other == "" {
					return fmt.Errorf("%s label %q: %w", platform, label, errBadLabel)
				}

				return fmt.Errorf("%s and %s share label %q on %s: %w", other, platform, label, goos, errBadLabel)
			}

			seen[label] = platform
		}
	}

	return nil
}

// validateNames ensures cleaner and exclude entries match by exact name only.
func validateNames(cfg *Config) error {
	plain := append(append([]string(nil), cfg.Clean.OutputDirs...), cfg.Clean.Lockfiles...)
	for _, name := range plain {
		if !isPlainName(name) || strings.ContainsAny(name, "*?[") {
			return fmt.Errorf("clean %q: %w", name, errBadPattern)
		}
	}

	for _, name := range cfg.SourceExcludes {
		if !isPlainName(name) {
			return fmt.Errorf("source_excludes %q: %w", name, errBadPattern)
		}

		if _, err := filepath.Match(name, ""); err != nil {
			return fmt.Errorf("source_excludes %q: %w", name, err)
		}
	}

	return nil
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// ResolveTargets returns the target table for goos with overrides applied.
func (c *Config) ResolveTargets(goos string) map[pack.Platform]*pack.Target {
	targets := pack.DefaultTargets(goos)

	if c.DesktopLabel != "" {
		targets[pack.Desktop].Label = c.DesktopLabel
	}

	for name, override := range c.Targets {
		platform, err := pack.ParsePlatform(name)
		if err != nil {
			continue
		}

		target := targets[platform]
		if override.Label != "" {
			target.Label = override.Label
		}

		if len(override.Build) > 0 {
			target.Build = override.Build
		}

		if len(override.Artifacts) > 0 {
			target.Artifacts = override.Artifacts
		}
	}

	return targets
}

// TemplatePlatforms returns the platforms configured for a template, or all of them.
func (c *Config) TemplatePlatforms(name string) []pack.Platform {
	tpl, ok := c.Templates[name]
	if !ok || len(tpl.Platforms) == 0 {
		return pack.Platforms()
	}

	platforms := make([]pack.Platform, 0, len(tpl.Platforms))
	for _, raw := range tpl.Platforms {
		if p, err := pack.ParsePlatform(raw); err == nil {
			platforms = append(platforms, p)
		}
	}

	return platforms
}

// TemplatesPath returns the absolute templates directory.
func (c *Config) TemplatesPath() string {
	return c.resolve(c.TemplatesDir)
}

// OutputPath returns the absolute archive output directory.
func (c *Config) OutputPath() string {
	return c.resolve(c.OutputDir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}

	return filepath.Join(c.Workspace, p)
}
