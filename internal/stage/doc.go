// Package stage is the Stage Assembler.
//
// For every packaging run it deletes the (template, platform) staging
// directory and repopulates it with exactly the target's staging set, so no
// file from an earlier run with a different asset set can reach an archive.
// Sources are verified up front and a missing one aborts the run before any
// archive is touched.
package stage
