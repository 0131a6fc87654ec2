// Package config implements Oxide's layered configuration resolver.
//
// Load reads a global config.toml, a project-local .oxide/config.toml,
// then environment variables, each layer overriding the previous on a
// per-field basis. The result is validated and returned as an
// immutable snapshot for the rest of the system.
//
// Paths returns the XDG-style locations for Oxide's own data
// (~/.config/oxide, ~/.local/share/oxide, etc.), separate from the
// per-project .oxide/ directory that holds sessions, tasks, and the
// project config layer.
//
// Secret (re-exported from pkg/types) is the opaque credential holder:
// its value is resolved from OXIDE_AUTH_TOKEN/ANTHROPIC_API_KEY/API_KEY
// and never appears in a config file, a log line, or a marshalled
// snapshot.
package config
