// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Default client configuration values.
const (
	DefaultFormat      = "pretty"
	DefaultPlainTmpl   = "{{.EventNumber}} {{.EventType}} {{.AppName}} {{.Summary}}"
	DefaultTUIProgress = true
	DefaultReconnect   = true
)

// Config represents the medialistener client configuration.
type Config struct {
	Socket    string          `toml:"socket"` // Empty = daemon default
	Format    string          `toml:"format"` // pretty, json, yaml, plain
	Template  string          `toml:"template"`
	Reconnect bool            `toml:"reconnect"`
	TUI       TUIConfig       `toml:"tui"`
	Clipboard ClipboardConfig `toml:"clipboard"`
	Templates TemplatesConfig `toml:"templates"`
}

// ClipboardConfig holds clipboard settings for the TUI.
type ClipboardConfig struct {
	Command string `toml:"command"` // Empty = auto-detect (wl-copy, xclip, xsel)
}

// TUIConfig holds TUI-specific settings.
type TUIConfig struct {
	ShowProgress bool `toml:"show_progress"`
	ShowHelp     bool `toml:"show_help"`
	HistoryLines int  `toml:"history_lines"`
}

// TemplatesConfig holds named output templates.
type TemplatesConfig struct {
	Custom map[string]string `toml:"custom"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Socket:    "",
		Format:    DefaultFormat,
		Template:  DefaultPlainTmpl,
		Reconnect: DefaultReconnect,
		TUI: TUIConfig{
			ShowProgress: DefaultTUIProgress,
			ShowHelp:     true,
			HistoryLines: 8,
		},
		Templates: TemplatesConfig{
			Custom: make(map[string]string),
		},
	}
}

// ConfigDir returns the media-listener configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "media-listener")
}

// ConfigPath returns the path to the client config file.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Templates.Custom == nil {
		cfg.Templates.Custom = make(map[string]string)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SocketPath returns the configured socket, falling back to the daemon default.
func (c *Config) SocketPath() string {
	if c.Socket == "" {
		return DefaultSocketPath
	}
	return expandPath(c.Socket)
}

// GetTemplate resolves a template name. Custom templates are checked
// first; any other value is returned as a literal template.
func (c *Config) GetTemplate(name string) string {
	if name == "" {
		return c.Template
	}
	if tmpl, ok := c.Templates.Custom[name]; ok {
		return tmpl
	}
	return name
}
