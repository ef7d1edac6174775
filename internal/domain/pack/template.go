package pack

import (
	"slices"
	"strings"
)

// Template is a self-contained game project used as packaging input.
// Inside Root the pipeline only touches its dist directory and the built
// artifacts of its targets, which the toolchain writes and the builder deletes
// before every build.
type Template struct {
	// Name is the directory name and unique identifier.
	Name string
	// Root is the absolute path of the template directory.
	Root string
	// Platforms lists the platforms the template can be packaged for.
	Platforms []Platform
}

// Supports reports whether the template can be built for p.
func (t *Template) Supports(p Platform) bool {
	return slices.Contains(t.Platforms, p)
}

// ModuleName is the name of the compiled WASM module and its loader.
func (t *Template) ModuleName() string {
	return strings.ReplaceAll(t.Name, "-", "_")
}

// BinaryName is the file name of the desktop executable on goos.
func (t *Template) BinaryName(goos string) string {
	return t.Name + ExecutableExtension(goos)
}

// ArchiveName returns "<template>-<label>.zip".
func ArchiveName(template, label string) string {
	return template + "-" + label + ".zip"
}

// SourceLabel is the archive suffix reserved for template sources.
const SourceLabel = "template"

// SourceArchiveName returns "<template>-template.zip".
func SourceArchiveName(template string) string {
	return ArchiveName(template, SourceLabel)
}
