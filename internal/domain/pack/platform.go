package pack

import (
	"strings"
)

// Platform is a packaging target family.
type Platform string

const (
	// Desktop produces one optimised native executable.
	Desktop Platform = "desktop"
	// Web produces a WASM module plus its JS loader.
	Web Platform = "web"
)

// Platforms returns every known platform in packaging order.
func Platforms() []Platform {
	return []Platform{Desktop, Web}
}

// ParsePlatform maps user input onto a Platform. An empty string selects Desktop.
func ParsePlatform(s string) (Platform, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return Desktop, nil
	}

	for _, p := range Platforms() {
		if string(p) == name {
			return p, nil
		}
	}

	return "", &UnknownPlatformError{Name: s}
}

// Capability describes what the execution environment of a target offers.
type Capability string

const (
	// CapNativeOS means the artifact runs directly on the host OS.
	CapNativeOS Capability = "native-os"
	// CapFilesystem means the artifact may read files next to itself, e.g. assets/.
	CapFilesystem Capability = "filesystem"
	// CapThreads means OS threads are available.
	CapThreads Capability = "threads"
	// CapSandboxed means the artifact runs inside a browser sandbox.
	CapSandboxed Capability = "sandboxed"
)

// HostLabel returns the archive label used for desktop builds on goos.
func HostLabel(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "":
		return "desktop"
	default:
		return goos
	}
}

// ExecutableExtension returns ".exe" on Windows and "" elsewhere.
func ExecutableExtension(goos string) string {
	if goos == "windows" {
		return ".exe"
	}

	return ""
}
