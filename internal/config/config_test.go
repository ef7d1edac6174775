package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	cfg := Default()
	require.NoError(t, Validate(cfg))

	cfg = Default()
	cfg.TemplatesDir = " "
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.ServeAddress = "bad:address"
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Compression = "rar"
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Compression = ""
	require.NoError(t, Validate(cfg))
	require.Equal(t, CompressionDeflate, cfg.Compression)

	cfg = Default()
	cfg.Targets = map[string]TargetOverride{"android": {Label: "apk"}}
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Targets = map[string]TargetOverride{"web": {Build: [][]string{{}}}}
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Templates = map[string]TemplateConfig{"top-down": {Platforms: []string{"console"}}}
	require.Error(t, Validate(cfg))
}

// TestValidate_CleanNames rejects globs and paths in cleaner entries.
func TestValidate_CleanNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "..", "target/release", "targ*", `a\b`} {
		cfg := Default()
		cfg.Clean.OutputDirs = []string{name}
		require.Error(t, Validate(cfg), name)
	}

	cfg := Default()
	cfg.SourceExcludes = []string{"*.pack", "node_modules"}
	require.NoError(t, Validate(cfg))
}

// TestValidate_Labels keeps every stage a distinct directory under dist_dir.
func TestValidate_Labels(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mutate func(cfg *Config)
		want   error
	}{
		"nested dist dir":       {func(cfg *Config) { cfg.DistDir = "build/dist" }, errBadPattern},
		"parent dist dir":       {func(cfg *Config) { cfg.DistDir = ".." }, errBadPattern},
		"escaping target label": {func(cfg *Config) { cfg.Targets = map[string]TargetOverride{"web": {Label: "../x"}} }, errBadLabel},
		"escaping desktop":      {func(cfg *Config) { cfg.DesktopLabel = "../desktop" }, errBadLabel},
		"desktop as web":        {func(cfg *Config) { cfg.DesktopLabel = "web" }, errBadLabel},
		"web as host":           {func(cfg *Config) { cfg.Targets = map[string]TargetOverride{"web": {Label: "macos"}} }, errBadLabel},
		"source archive label":  {func(cfg *Config) { cfg.Targets = map[string]TargetOverride{"web": {Label: "template"}} }, errBadLabel},
	}

	for name, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		require.ErrorIs(t, Validate(cfg), tc.want, name)
	}

	cfg := Default()
	cfg.DesktopLabel = "win64"
	cfg.Targets = map[string]TargetOverride{"web": {Label: "browser"}}
	require.NoError(t, Validate(cfg))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := Default()
	cfg.DefaultTemplate = "slot-machine"
	cfg.Compression = CompressionZstd
	cfg.Templates = map[string]TemplateConfig{"slot-machine": {Platforms: []string{"desktop"}}}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "slot-machine", loaded.DefaultTemplate)
	require.Equal(t, CompressionZstd, loaded.Compression)
	require.Equal(t, []pack.Platform{pack.Desktop}, loaded.TemplatePlatforms("slot-machine"))
	require.Equal(t, pack.Platforms(), loaded.TemplatePlatforms("top-down"))

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_PartialFileKeepsDefaults verifies that unspecified keys keep built-in values.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: out\n"), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "out", cfg.OutputDir)
	require.Equal(t, "templates", cfg.TemplatesDir)
	require.Equal(t, []string{"target"}, cfg.Clean.OutputDirs)
}

// TestLoad_ExplicitMissingFile fails instead of silently using defaults.
func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestResolveTargets applies label, build and artifact overrides.
func TestResolveTargets(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.DesktopLabel = "win64"
	cfg.Targets = map[string]TargetOverride{
		"web": {
			Build: [][]string{{"trunk", "build", "--release"}},
		},
	}

	targets := cfg.ResolveTargets("windows")
	require.Equal(t, "win64", targets[pack.Desktop].Label)
	require.Equal(t, [][]string{{"trunk", "build", "--release"}}, targets[pack.Web].Build)
	require.Len(t, targets[pack.Web].Artifacts, 4)
}

// TestPaths resolves relative directories against the workspace.
func TestPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := Default()
	cfg.Workspace = root
	cfg.OutputDir = filepath.Join(root, "abs-out")

	require.Equal(t, filepath.Join(root, "templates"), cfg.TemplatesPath())
	require.Equal(t, filepath.Join(root, "abs-out"), cfg.OutputPath())
}

// TestLoadWorkspace reads the workspace's own settings file and records the root.
func TestLoadWorkspace(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultConfigFilename), []byte("output_dir: out\n"), 0o644))

	cfg, err := LoadWorkspace(root, "")
	require.NoError(t, err)
	require.Equal(t, root, cfg.Workspace)
	require.Equal(t, filepath.Join(root, "out"), cfg.OutputPath())
	require.Equal(t, "templates", cfg.TemplatesDir)

	_, err = LoadWorkspace(root, filepath.Join(root, "other.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
