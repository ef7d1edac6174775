// Package app wires the pipeline components into named operations.
//
// Each command of the CLI is an operation in the registry; composite
// operations such as package and run reach the build step by invoking the
// build operation by name.
package app
