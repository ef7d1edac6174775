// Package common holds helpers shared by several services.
//
// It detects the current system actor (hostname/username) recorded in the
// release manifest and manages the workspace run marker that keeps packaging
// runs from overlapping.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
