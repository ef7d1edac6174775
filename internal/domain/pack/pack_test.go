package pack

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParsePlatform covers defaults, case folding and rejection of unknown names.
func TestParsePlatform(t *testing.T) {
	t.Parallel()

	p, err := ParsePlatform("")
	require.NoError(t, err)
	require.Equal(t, Desktop, p)

	p, err = ParsePlatform(" WEB ")
	require.NoError(t, err)
	require.Equal(t, Web, p)

	_, err = ParsePlatform("android")

	var unknown *UnknownPlatformError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "android", unknown.Name)
	require.Equal(t, StageResolve, StageOf(err))
}

// TestTemplateNames checks module, binary and archive naming.
func TestTemplateNames(t *testing.T) {
	t.Parallel()

	tpl := &Template{Name: "slot-machine", Platforms: []Platform{Desktop}}

	require.Equal(t, "slot_machine", tpl.ModuleName())
	require.Equal(t, "slot-machine.exe", tpl.BinaryName("windows"))
	require.Equal(t, "slot-machine", tpl.BinaryName("linux"))
	require.Equal(t, "slot-machine-windows.zip", ArchiveName(tpl.Name, HostLabel("windows")))
	require.Equal(t, "slot-machine-template.zip", SourceArchiveName(tpl.Name))
	require.True(t, tpl.Supports(Desktop))
	require.False(t, tpl.Supports(Web))
}

// TestHostLabel maps GOOS values to archive labels.
func TestHostLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "windows", HostLabel("windows"))
	require.Equal(t, "macos", HostLabel("darwin"))
	require.Equal(t, "linux", HostLabel("linux"))
}

// TestTargetExpand verifies placeholder expansion without mutating the source table.
func TestTargetExpand(t *testing.T) {
	t.Parallel()

	targets := DefaultTargets("windows")
	tpl := &Template{Name: "slot-machine"}

	desktop := targets[Desktop].Expand(tpl, "windows")
	require.Equal(t, "windows", desktop.Label)
	require.True(t, desktop.Has(CapNativeOS))
	require.False(t, desktop.Has(CapSandboxed))

	built := desktop.BuiltArtifacts()
	require.Len(t, built, 1)
	require.Equal(t, "target/release/slot-machine.exe", built[0].Source)
	require.Equal(t, "slot-machine.exe", built[0].Dest)

	web := targets[Web].Expand(tpl, "windows")
	require.Contains(t, web.Build[0], "slot_machine")
	require.Len(t, web.BuiltArtifacts(), 2)

	// wasm-pack suffixes the module with _bg; the stage keeps the loader's name.
	wasm := web.BuiltArtifacts()[1]
	require.Equal(t, "pkg/slot_machine_bg.wasm", wasm.Source)
	require.Equal(t, "pkg/slot_machine.wasm", wasm.Dest)

	// The shared table keeps its placeholders.
	require.Equal(t, "target/release/{binary}", targets[Desktop].Artifacts[1].Source)
}

// TestStageOf checks stage attribution through wrapping.
func TestStageOf(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		StageBuild:   &BuildFailure{Template: "x", Platform: Web, Command: "wasm-pack", Err: errors.New("exit status 1")},
		StageStage:   &MissingArtifactError{Path: "pkg/x.wasm"},
		StageArchive: &EmptyStageError{Path: "dist/web"},
		StageClean:   &ResourceBusyError{Path: "target"},
		StageResolve: &UnknownTemplateError{Name: "x"},
	}

	for stage, err := range cases {
		require.Equal(t, stage, StageOf(fmt.Errorf("package: %w", err)))
	}

	require.Empty(t, StageOf(errors.New("plain")))
}

// TestBuildFailureMessage ensures diagnostics are surfaced in the message.
func TestBuildFailureMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 101")
	err := &BuildFailure{
		Template:    "top-down",
		Platform:    Desktop,
		Command:     "cargo build --release",
		Diagnostics: "error[E0425]: cannot find value",
		Err:         cause,
	}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "top-down")
	require.Contains(t, err.Error(), "E0425")
}

// TestManifestPutRemove keeps one sorted entry per (template, label).
func TestManifestPutRemove(t *testing.T) {
	t.Parallel()

	actor := &Actor{Hostname: "build-host", Username: "dev"}
	m := &Manifest{}

	m.Put(&Release{Template: "top-down", Label: "linux", Checksum: "a", Actor: actor})
	m.Put(&Release{Template: "slot-machine", Label: "web", Checksum: "b"})
	m.Put(&Release{Template: "top-down", Label: "linux", Checksum: "c", Actor: actor})

	require.Len(t, m.Releases, 2)
	require.Equal(t, "slot-machine", m.Releases[0].Template)
	require.Equal(t, "c", m.Find("top-down", "linux").Checksum)
	require.Equal(t, "dev@build-host", m.Find("top-down", "linux").Actor.String())

	// Stored entries are copies.
	actor.Username = "changed"
	require.Equal(t, "dev", m.Find("top-down", "linux").Actor.Username)

	require.True(t, m.Remove("top-down", "linux"))
	require.False(t, m.Remove("top-down", "linux"))
	require.Nil(t, m.Find("top-down", "linux"))
	require.Len(t, m.Releases, 1)
}

// TestActorClone verifies that Clone returns a deep copy and handles nil safely.
func TestActorClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Actor)(nil).Clone())
	require.Empty(t, (*Actor)(nil).String())

	a := &Actor{Hostname: "h", Username: "u"}
	b := a.Clone()
	b.Hostname = "other"
	require.Equal(t, "h", a.Hostname)
}
