// Package config defines the workspace settings used by quaso-pack and
// provides helpers to load, validate and save them in YAML format.
//
// Settings are read from quaso-pack.yaml in the working directory, falling
// back to $XDG_CONFIG_HOME/quaso-pack/config.yaml and then to built-in
// defaults. Target overrides are merged onto the built-in target table by
// ResolveTargets, so a workspace only declares what differs.
package config
