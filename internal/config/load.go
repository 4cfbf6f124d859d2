package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// FileName is the config file searched for when no path is given.
const FileName = "offscreen.yaml"

// Load returns the defaults overlaid with the file at path, or with the
// first config file found when path is empty. Flags are applied by the
// caller so tests can load without a command line.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = FindFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}
	return cfg, nil
}

// FindFile looks for FileName in the working directory and then in Dir.
func FindFile() string {
	for _, path := range []string{
		FileName,
		filepath.Join(Dir(), FileName),
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Dir returns the OS-appropriate config directory.
func Dir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "offscreen")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "offscreen")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "offscreen")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "offscreen")
	}
}

// loadFromFile merges the YAML file at path into cfg. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func loadFromFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// SaveTo writes the config to path, creating its directory if needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
