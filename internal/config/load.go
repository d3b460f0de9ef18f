package config

import (
	"fmt"
	"os"

	"github.com/USA-RedDragon/configulator"
)

// EnvVar is the environment variable naming the config file path.
const EnvVar = "SPEAKEASY_CONFIG"

// DefaultPath is used when EnvVar is unset.
const DefaultPath = "config.toml"

// Load reads config.toml (or the path named by SPEAKEASY_CONFIG), overlays
// environment variables, and validates the result. Matches the teacher's
// configulator.New[T]().Default()-then-override shape (cmd/root.go,
// internal/testutils/integration.go).
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		path = DefaultPath
	}

	builder := configulator.New[Config]()

	cfg, err := builder.Default()
	if err != nil {
		return nil, fmt.Errorf("config: building defaults: %w", err)
	}

	if _, statErr := os.Stat(path); statErr == nil {
		loaded, loadErr := builder.LoadFile(path)
		if loadErr != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, loadErr)
		}
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validating: %w", err)
	}

	return &cfg, nil
}
