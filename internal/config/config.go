// Package config loads the pkgretain configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/pkgretain/internal/logging"
	"github.com/blackwell-systems/pkgretain/internal/store"
)

// Dir returns the pkgretain config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/pkgretain if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pkgretain"), nil
}

// DefaultPath returns the config file location used when --config is not set.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns ~/.pkgretain, which holds the journal and daemon files.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pkgretain"), nil
}

type Config struct {
	Journal   JournalConfig   `yaml:"journal"`
	Retention RetentionConfig `yaml:"retention"`
	Log       LogConfig       `yaml:"log"`
}

type JournalConfig struct {
	Backend     string        `yaml:"backend"`
	Path        string        `yaml:"path"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

type RetentionConfig struct {
	MaxLockAge    time.Duration `yaml:"maxLockAge"`
	CheckLiveness bool          `yaml:"checkLiveness"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Journal: JournalConfig{
			Backend:     string(store.BackendJSON),
			Path:        "~/.pkgretain/journal.json",
			LockTimeout: store.DefaultLockTimeout,
		},
		Retention: RetentionConfig{
			CheckLiveness: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads and parses a YAML config file over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := store.ParseBackend(c.Journal.Backend); err != nil {
		return err
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		return errors.New("journal.path must not be empty")
	}
	if c.Journal.LockTimeout < 0 {
		return fmt.Errorf("journal.lockTimeout must not be negative, got %s", c.Journal.LockTimeout)
	}
	if c.Retention.MaxLockAge < 0 {
		return fmt.Errorf("retention.maxLockAge must not be negative, got %s", c.Retention.MaxLockAge)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// JournalPath returns the journal path with a leading "~" expanded.
func (c *Config) JournalPath() (string, error) {
	return ExpandHome(c.Journal.Path)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
