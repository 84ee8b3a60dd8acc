package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Engine: EngineConfig{
			Endpoint:             "127.0.0.1:50051",
			LanguageCode:         "en-US",
			Model:                "",
			AutomaticPunctuation: true,
			Insecure:             true,
			DialTimeoutMS:        3000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Notify: NotifyConfig{
			Enable:         true,
			AppName:        "voxkey",
			ErrorTimeoutMS: 1600,
		},
		Clipboard: ClipboardConfig{
			Enable:  true,
			Command: clipboard,
			Argv:    mustParseArgv(clipboard),
		},
		Debug: DebugConfig{},
	}
}
