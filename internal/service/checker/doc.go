// Package checker implements the checks operation: format, build, lint and
// test across the workspace root and every template, failing fast.
package checker
