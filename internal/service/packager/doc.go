// Package packager runs the packaging pipeline.
//
// For each requested platform of a template it builds, stages and archives
// the game, then records the archive in the release manifest next to it. It
// also produces source archives of templates. Runs hold the workspace run
// marker so two packagers never share a staging directory.
package packager
