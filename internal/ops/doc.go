// Package ops is the operation registry.
//
// Every user-facing command is an Operation: a name, declared parameters
// with defaults, and a body. Operations call each other by name through
// Invoke, which fills defaults, rejects undeclared arguments and refuses
// cycles, so the call graph between operations stays explicit.
package ops
