// Package pack contains the core domain types of the packaging pipeline.
//
// It defines Platform and Capability, the data-driven Target table (build
// commands and the exact staging set per platform), Template, and the error
// taxonomy whose members name the pipeline stage that failed.
package pack
