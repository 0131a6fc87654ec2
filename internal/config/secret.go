package config

import "github.com/oxide-run/oxide/pkg/types"

// Secret re-exports the canonical credential holder from pkg/types,
// where it must live so the shared Config struct can reference it
// without an import cycle back into this package.
type Secret = types.Secret

// NewSecret wraps value in a Secret. An empty string produces an unset Secret.
func NewSecret(value string) Secret {
	return types.NewSecret(value)
}
