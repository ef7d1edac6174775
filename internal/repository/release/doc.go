// Package release implements persistence for the release manifest.
//
// The FileRepository stores the manifest as YAML next to the archives and
// exposes a Repository interface that the packaging service depends on.
package release
