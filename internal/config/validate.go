package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Engine.Endpoint) == "" {
		return nil, fmt.Errorf("engine.endpoint must not be empty")
	}
	if strings.TrimSpace(cfg.Engine.LanguageCode) == "" {
		return nil, fmt.Errorf("engine.language_code must not be empty")
	}
	if cfg.Engine.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("engine.dial_timeout_ms must be > 0")
	}
	if cfg.Notify.Enable && strings.TrimSpace(cfg.Notify.AppName) == "" {
		return nil, fmt.Errorf("notify.app_name must not be empty when notify.enable=true")
	}
	if cfg.Notify.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("notify.error_timeout_ms must be >= 0")
	}
	if cfg.Clipboard.Enable && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard.command must not be empty when clipboard.enable=true")
	}

	if !cfg.Engine.Insecure && strings.TrimSpace(cfg.Engine.Model) == "" {
		warnings = append(warnings, Warning{
			Message: "engine.insecure=false without engine.model; hosted engines usually require an explicit model",
		})
	}

	return warnings, nil
}
