package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// appName names the per-user directories.
const appName = "taskconsole"

// Environment variables that override file settings.
const (
	EnvAPIURL   = "TASKCONSOLE_API_URL"
	EnvAPIToken = "TASKCONSOLE_API_TOKEN"
	EnvLocale   = "TASKCONSOLE_LOCALE"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment, project config,
// global config, defaults. Keys absent from a file keep their lower-layer
// value. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*ConsoleConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

// GlobalPath returns $XDG_CONFIG_HOME/taskconsole/config.json.
func GlobalPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.json")
}

// ProjectPath returns .taskconsole/config.json relative to the working directory.
func ProjectPath() string {
	return filepath.Join("."+appName, "config.json")
}

// DefaultCachePath returns $XDG_DATA_HOME/taskconsole/cache.db.
func DefaultCachePath() string {
	return filepath.Join(xdg.DataHome, appName, "cache.db")
}

// LogPath returns the watch log file under $XDG_STATE_HOME, creating its
// directory.
func LogPath() (string, error) {
	return xdg.StateFile(filepath.Join(appName, "watch.log"))
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*ConsoleConfig, error) {
	return Load(GlobalPath(), ProjectPath())
}

// mergeConfigFile decodes a JSON config file over base. Only keys present in
// the file change base. Missing files are silently skipped.
func mergeConfigFile(base *ConsoleConfig, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *ConsoleConfig) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv(EnvLocale); v != "" {
		cfg.Display.Locale = v
	}
}
