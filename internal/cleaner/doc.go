// Package cleaner is the Workspace Cleaner.
//
// It deletes build output directories and lockfiles by exact name anywhere
// under the workspace, leaving sources alone. Items held by a running
// process are reported as pack.ResourceBusyError while the rest are still
// removed.
package cleaner
