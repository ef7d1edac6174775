// Package resolver is the Target Resolver: it turns a platform name and a
// template name into a concrete pipeline variant (expanded target, staging
// path and archive path). It reads the workspace but has no side effects.
package resolver
