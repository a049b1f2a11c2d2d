// Package config provides configuration types, defaults, and persistence
// for prism.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/prism/internal/log"
)

// Config holds all configuration options for prism.
type Config struct {
	// GrammarDirs are scanned for grammar documents (json/yaml).
	GrammarDirs []string `mapstructure:"grammar_dirs"`

	// Theme is the path to a VS Code-style token color theme.
	Theme string `mapstructure:"theme"`

	// Plain disables styling; output is the input text unchanged.
	Plain bool `mapstructure:"plain"`

	// AutoReload re-highlights open pagers when grammars or the theme
	// change on disk.
	AutoReload bool `mapstructure:"auto_reload"`

	UI UIConfig `mapstructure:"ui"`
}

// UIConfig holds pager interface options.
type UIConfig struct {
	ShowStatusBar bool `mapstructure:"show_status_bar"`
	WrapLines     bool `mapstructure:"wrap_lines"`
}

// DefaultGrammarDir returns ~/.config/prism/grammars, or empty string if
// the home directory is unavailable.
func DefaultGrammarDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "prism", "grammars")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	cfg := Config{
		AutoReload: true,
		UI: UIConfig{
			ShowStatusBar: true,
			WrapLines:     false,
		},
	}
	if dir := DefaultGrammarDir(); dir != "" {
		cfg.GrammarDirs = []string{dir}
	}
	return cfg
}

// Validate checks the configuration for errors. Empty values fall back to
// defaults and are valid.
func Validate(cfg Config) error {
	for i, dir := range cfg.GrammarDirs {
		if dir == "" {
			return fmt.Errorf("grammar_dirs[%d]: empty path", i)
		}
	}
	if cfg.Theme != "" {
		if _, err := os.Stat(cfg.Theme); err != nil {
			return fmt.Errorf("theme %q: %w", cfg.Theme, err)
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with
// comments.
func DefaultConfigTemplate() string {
	return `# Prism Configuration

# Directories scanned for TextMate grammar documents (*.json, *.yaml)
# grammar_dirs:
#   - ~/.config/prism/grammars

# Path to a VS Code-style token color theme
# theme: ~/.config/prism/theme.json

# Disable styling entirely
plain: false

# Re-highlight open pagers when grammars or the theme change on disk
auto_reload: true

# Pager settings
ui:
  show_status_bar: true   # Show file name and scroll position
  wrap_lines: false       # Soft-wrap long lines in the pager
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
