// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV) that tag entries once,
//   - level configuration and parsing utilities,
//   - convenience functions (InfoKV, ErrorKV, etc.).
//
// Every pipeline stage takes a context and extracts the logger from it, so
// a run id or template name attached once shows up on every entry below it.
package logger
