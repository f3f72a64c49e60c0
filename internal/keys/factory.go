package keys

import (
	"fmt"

	"docvault/internal/config"
	"docvault/internal/docs"
)

// NewProviderFromConfig creates a KeyProvider based on the keys config type.
func NewProviderFromConfig(cfg config.KeysConfig) (docs.KeyProvider, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryProvider(), nil
	case "local", "":
		if cfg.KeyDir == "" {
			return nil, fmt.Errorf("local keys require key_dir to be set")
		}
		return NewLocalProvider(cfg.KeyDir), nil
	default:
		return nil, fmt.Errorf("unknown keys type: %q", cfg.Type)
	}
}
