// Package archive is the Archive Packager.
//
// It turns a staging directory, or a template source tree, into a zip whose
// bytes depend only on the staged names, contents and execute bits. The
// archive is assembled in memory and swapped into place with go-update, so
// readers never observe a partially written file.
package archive
