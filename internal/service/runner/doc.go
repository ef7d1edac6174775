// Package runner implements the run operation.
//
// Desktop targets are built and the binary is started from the template
// root so relative asset paths resolve. Web targets are built, staged and
// served from the staging directory; with watching enabled, edits to the
// staged sources are picked up without a rebuild.
package runner
