package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

const (
	unsetCommit    = "none"
	unsetBuildTime = "unknown"
	// shortCommitLength matches `git rev-parse --short`.
	shortCommitLength = 7
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.3.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = unsetCommit
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = unsetBuildTime
)

var fillOnce sync.Once

// Short returns only the semantic version string. Release manifests record it.
func Short() string {
	return Version
}

// Full returns the version with commit, build time and Go toolchain.
func Full() string {
	fillOnce.Do(fillFromBuildInfo)

	return fmt.Sprintf("quaso-pack %s (commit: %s, built at: %s, %s)", Version, Commit, BuildTime, runtime.Version())
}

// fillFromBuildInfo takes commit and time from the VCS stamp of `go build`
// when ldflags left them unset.
func fillFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	applyBuildSettings(info.Settings)
}

func applyBuildSettings(settings []debug.BuildSetting) {
	var dirty bool

	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == unsetCommit && s.Value != "" {
				Commit = s.Value
				if len(Commit) > shortCommitLength {
					Commit = Commit[:shortCommitLength]
				}
			}
		case "vcs.time":
			if BuildTime == unsetBuildTime && s.Value != "" {
				BuildTime = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if dirty && Commit != unsetCommit {
		Commit += "-dirty"
	}
}
