// Package version exposes build metadata for quaso-pack.
//
// Version, Commit and BuildTime are injected via -ldflags "-X". Local builds
// fall back to the VCS stamp recorded by the Go toolchain.
package version
