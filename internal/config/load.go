package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	cfg := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnvOverrides(&cfg)
			return Loaded{
				Path:   resolvedPath,
				Config: cfg,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	cfg.Clipboard.Argv, err = parseArgv(cfg.Clipboard.Command)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse clipboard.command: %w", err)
	}

	applyEnvOverrides(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// applyEnvOverrides lets deployment environments pin connection settings without a file edit.
func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Engine.Endpoint, "VOXKEY_ENGINE_ENDPOINT")
	overrideString(&cfg.Engine.LanguageCode, "VOXKEY_ENGINE_LANGUAGE_CODE")
	overrideString(&cfg.Engine.Model, "VOXKEY_ENGINE_MODEL")
	overrideString(&cfg.Audio.Input, "VOXKEY_AUDIO_INPUT")
	overrideString(&cfg.Audio.Fallback, "VOXKEY_AUDIO_FALLBACK")
}

func overrideString(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*target = value
	}
}
