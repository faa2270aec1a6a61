package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces environment overrides, e.g. ANCHOR_REPOSITORY_BACKEND
const EnvPrefix = "ANCHOR"

// Load builds the configuration: defaults, then config.yaml at path (skipped
// when path is empty), then .env, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg; unset variables leave fields untouched
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("error processing environment configuration: %w", err)
	}
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return nil
}
