package pack

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline stage names reported by errors.
const (
	StageResolve = "resolve"
	StageBuild   = "build"
	StageStage   = "stage"
	StageArchive = "archive"
	StageClean   = "clean"
)

// StageError is implemented by every error of the packaging taxonomy.
type StageError interface {
	error
	Stage() string
}

// StageOf returns the stage that produced err, or "" when err is not part of the taxonomy.
func StageOf(err error) string {
	var se StageError
	if errors.As(err, &se) {
		return se.Stage()
	}

	return ""
}

// UnknownPlatformError rejects a platform name outside the enumerated set.
type UnknownPlatformError struct {
	Name string
}

func (e *UnknownPlatformError) Error() string {
	names := make([]string, 0, len(Platforms()))
	for _, p := range Platforms() {
		names = append(names, string(p))
	}

	return fmt.Sprintf("unknown platform %q (supported: %s)", e.Name, strings.Join(names, ", "))
}

// Stage implements StageError.
func (e *UnknownPlatformError) Stage() string { return StageResolve }

// UnknownTemplateError rejects a template name that is not in the workspace.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.Name)
}

// Stage implements StageError.
func (e *UnknownTemplateError) Stage() string { return StageResolve }

// UnsupportedPlatformError rejects a platform the template does not declare.
type UnsupportedPlatformError struct {
	Template string
	Platform Platform
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("template %q does not support platform %q", e.Template, e.Platform)
}

// Stage implements StageError.
func (e *UnsupportedPlatformError) Stage() string { return StageResolve }

// BuildFailure is a fatal compile error. Diagnostics holds the tail of the
// toolchain output.
type BuildFailure struct {
	Template    string
	Platform    Platform
	Command     string
	Diagnostics string
	Err         error
}

func (e *BuildFailure) Error() string {
	msg := fmt.Sprintf("build %s for %s: %s: %v", e.Template, e.Platform, e.Command, e.Err)
	if e.Diagnostics != "" {
		msg += "\n" + e.Diagnostics
	}

	return msg
}

// Unwrap returns the underlying process error.
func (e *BuildFailure) Unwrap() error { return e.Err }

// Stage implements StageError.
func (e *BuildFailure) Stage() string { return StageBuild }

// MissingArtifactError reports a required staging source that does not exist
// or is an empty build output.
type MissingArtifactError struct {
	Path string
}

func (e *MissingArtifactError) Error() string {
	return "missing required artifact: " + e.Path
}

// Stage implements StageError.
func (e *MissingArtifactError) Stage() string { return StageStage }

// EmptyStageError reports a staging directory that is absent or has no files.
type EmptyStageError struct {
	Path string
}

func (e *EmptyStageError) Error() string {
	return "staging directory is empty or absent: " + e.Path
}

// Stage implements StageError.
func (e *EmptyStageError) Stage() string { return StageArchive }

// ResourceBusyError reports a cleanup target held by another process.
type ResourceBusyError struct {
	Path string
	Err  error
}

func (e *ResourceBusyError) Error() string {
	if e.Err == nil {
		return "resource busy: " + e.Path
	}

	return fmt.Sprintf("resource busy: %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause, if any.
func (e *ResourceBusyError) Unwrap() error { return e.Err }

// Stage implements StageError.
func (e *ResourceBusyError) Stage() string { return StageClean }
