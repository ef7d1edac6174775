package pack

import (
	"slices"
	"strings"
)

// Artifact is one entry of a target's staging set.
type Artifact struct {
	// Source is the path relative to the template root.
	Source string `yaml:"source"`
	// Dest is the path relative to the staging root.
	Dest string `yaml:"dest"`
	// Dir marks a directory copied recursively.
	Dir bool `yaml:"dir,omitempty"`
	// Built marks compiler output. Built artifacts are deleted before every
	// build and must be non-empty when staged.
	Built bool `yaml:"built,omitempty"`
}

// Target is the data describing how one platform is built and staged.
type Target struct {
	// Platform is the family this target belongs to.
	Platform Platform `yaml:"-"`
	// Label names the staging directory and the archive suffix.
	Label string `yaml:"label,omitempty"`
	// Capabilities describes the execution environment of the artifact.
	Capabilities []Capability `yaml:"capabilities,omitempty"`
	// Build is the ordered list of commands run in the template root.
	Build [][]string `yaml:"build,omitempty"`
	// Artifacts is the exact staging set.
	Artifacts []Artifact `yaml:"artifacts,omitempty"`
}

// Has reports whether the target declares the capability.
func (t *Target) Has(c Capability) bool {
	return slices.Contains(t.Capabilities, c)
}

// BuiltArtifacts returns the artifacts produced by the build commands.
func (t *Target) BuiltArtifacts() []Artifact {
	result := make([]Artifact, 0, len(t.Artifacts))

	for _, a := range t.Artifacts {
		if a.Built {
			result = append(result, a)
		}
	}

	return result
}

// Expand returns a copy of the target with {template}, {module} and {binary}
// placeholders replaced for tpl.
func (t *Target) Expand(tpl *Template, goos string) *Target {
	r := strings.NewReplacer(
		"{template}", tpl.Name,
		"{module}", tpl.ModuleName(),
		"{binary}", tpl.BinaryName(goos),
	)

	expanded := &Target{
		Platform:     t.Platform,
		Label:        t.Label,
		Capabilities: slices.Clone(t.Capabilities),
		Build:        make([][]string, 0, len(t.Build)),
		Artifacts:    make([]Artifact, 0, len(t.Artifacts)),
	}

	for _, argv := range t.Build {
		args := make([]string, 0, len(argv))
		for _, arg := range argv {
			args = append(args, r.Replace(arg))
		}

		expanded.Build = append(expanded.Build, args)
	}

	for _, a := range t.Artifacts {
		a.Source = r.Replace(a.Source)
		a.Dest = r.Replace(a.Dest)
		expanded.Artifacts = append(expanded.Artifacts, a)
	}

	return expanded
}

// DefaultTargets returns the built-in target table for a host running goos.
func DefaultTargets(goos string) map[Platform]*Target {
	return map[Platform]*Target{
		Desktop: {
			Platform:     Desktop,
			Label:        HostLabel(goos),
			Capabilities: []Capability{CapNativeOS, CapFilesystem, CapThreads},
			Build: [][]string{
				{"cargo", "build", "--release"},
			},
			Artifacts: []Artifact{
				{Source: "assets", Dest: "assets", Dir: true},
				{Source: "target/release/{binary}", Dest: "{binary}", Built: true},
				{Source: "README.md", Dest: "README.md"},
			},
		},
		Web: {
			Platform:     Web,
			Label:        "web",
			Capabilities: []Capability{CapSandboxed},
			Build: [][]string{
				{
					"wasm-pack", "build", "--release", "--target", "web",
					"--out-dir", "pkg", "--out-name", "{module}", "--no-typescript",
				},
			},
			Artifacts: []Artifact{
				{Source: "index.html", Dest: "index.html"},
				{Source: "pkg/{module}.js", Dest: "pkg/{module}.js", Built: true},
				{Source: "pkg/{module}_bg.wasm", Dest: "pkg/{module}.wasm", Built: true},
				{Source: "README.md", Dest: "README.md"},
			},
		},
	}
}
