// Package config resolves, parses, validates, and defaults voxkey configuration.
package config

// Config is the fully materialized runtime configuration used by voxkey.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Audio     AudioConfig     `yaml:"audio"`
	Notify    NotifyConfig    `yaml:"notify"`
	Clipboard ClipboardConfig `yaml:"clipboard"`
	Debug     DebugConfig     `yaml:"debug"`
}

// EngineConfig controls the streaming recognition engine connection and hints.
type EngineConfig struct {
	Endpoint             string `yaml:"endpoint"`
	LanguageCode         string `yaml:"language_code"`
	Model                string `yaml:"model"`
	AutomaticPunctuation bool   `yaml:"automatic_punctuation"`
	Insecure             bool   `yaml:"insecure"`
	DialTimeoutMS        int    `yaml:"dial_timeout_ms"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// NotifyConfig controls desktop notification behavior.
type NotifyConfig struct {
	Enable         bool   `yaml:"enable"`
	AppName        string `yaml:"app_name"`
	ErrorTimeoutMS int    `yaml:"error_timeout_ms"`
}

// ClipboardConfig controls transcript commit to the system clipboard.
type ClipboardConfig struct {
	Enable  bool   `yaml:"enable"`
	Command string `yaml:"command"`

	// Argv is the parsed form of Command, populated during load.
	Argv []string `yaml:"-"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableResponseDump bool `yaml:"response_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
