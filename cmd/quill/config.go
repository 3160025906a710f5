package main

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the optional quill.toml CLI configuration.
type Config struct {
	// Trace enables per-stage debug logging (same as --trace).
	Trace bool `toml:"trace"`
	// LogLevel is a zerolog level name: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// defaultConfigPath is looked up in the working directory when --config is
// not given.
const defaultConfigPath = "quill.toml"

// loadConfig reads the TOML config at path. A missing default config is
// not an error; a missing explicit path is.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := Config{LogLevel: "warn"}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
