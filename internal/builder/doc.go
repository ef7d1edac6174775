// Package builder is the Build Invoker. It runs a target's build commands in
// the template root through a CommandRunner and reports compile errors as
// pack.BuildFailure with the tail of the toolchain output.
package builder
