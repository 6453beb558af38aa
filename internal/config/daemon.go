package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults for the daemon configuration.
const (
	DefaultSocketPath       = "/tmp/media_listener.sock"
	DefaultSocketMode       = "0600"
	DefaultQueueSize        = 64
	DefaultOverflow         = "drop-oldest"
	DefaultSourceKind       = "mpris"
	DefaultPositionInterval = time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultLogLevel         = "info"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "1m", "1h30m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DaemonConfig is the configuration for medialistenerd.
// Loaded from ~/.config/media-listener/daemon.toml
type DaemonConfig struct {
	Socket    SocketConfig    `toml:"socket"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Source    SourceConfig    `toml:"source"`
	Shutdown  ShutdownConfig  `toml:"shutdown"`
	Log       LogConfig       `toml:"log"`
}

// SocketConfig contains the client socket settings.
type SocketConfig struct {
	Path string `toml:"path"`
	Mode string `toml:"mode"` // Octal permission bits, e.g. "0600"
}

// BroadcastConfig contains per-subscriber queue settings.
type BroadcastConfig struct {
	QueueSize int    `toml:"queue_size"`
	Overflow  string `toml:"overflow"` // "drop-oldest" or "disconnect"
}

// SourceConfig selects where media state comes from.
type SourceConfig struct {
	Kind             string   `toml:"kind"`              // "mpris", "stdin" or "file"
	Path             string   `toml:"path"`              // Input file for kind "file"
	Player           string   `toml:"player"`            // MPRIS bus name filter
	PositionInterval Duration `toml:"position_interval"` // 0 disables polling
}

// ShutdownConfig contains shutdown settings.
type ShutdownConfig struct {
	Timeout Duration `toml:"timeout"` // Time allowed for clients to drain
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn" or "error"
}

// ValidOverflowPolicies returns all valid broadcast.overflow values.
func ValidOverflowPolicies() []string {
	return []string{"drop-oldest", "disconnect"}
}

// ValidSourceKinds returns all valid source.kind values.
func ValidSourceKinds() []string {
	return []string{"mpris", "stdin", "file"}
}

// ValidLogLevels returns all valid log.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Socket: SocketConfig{
			Path: DefaultSocketPath,
			Mode: DefaultSocketMode,
		},
		Broadcast: BroadcastConfig{
			QueueSize: DefaultQueueSize,
			Overflow:  DefaultOverflow,
		},
		Source: SourceConfig{
			Kind:             DefaultSourceKind,
			PositionInterval: Duration(DefaultPositionInterval),
		},
		Shutdown: ShutdownConfig{
			Timeout: Duration(DefaultShutdownTimeout),
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "media-listener", "daemon.toml"), nil
}

// LoadDaemonConfig loads the daemon configuration from path.
// If path is empty, the default path is used. If the file doesn't exist,
// returns the default configuration.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	if path == "" {
		var err error
		path, err = DaemonConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	config := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveDaemonConfig saves the daemon configuration to path.
// If path is empty, the default path is used.
func SaveDaemonConfig(config *DaemonConfig, path string) error {
	if path == "" {
		var err error
		path, err = DaemonConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	if strings.TrimSpace(c.Socket.Path) == "" {
		return fmt.Errorf("socket path must not be empty")
	}
	if _, err := c.SocketMode(); err != nil {
		return err
	}

	if c.Broadcast.QueueSize < 1 || c.Broadcast.QueueSize > 65536 {
		return fmt.Errorf("queue_size must be between 1 and 65536, got %d", c.Broadcast.QueueSize)
	}
	if !contains(ValidOverflowPolicies(), c.Broadcast.Overflow) {
		return fmt.Errorf("invalid overflow %q, must be one of: %v", c.Broadcast.Overflow, ValidOverflowPolicies())
	}

	if !contains(ValidSourceKinds(), c.Source.Kind) {
		return fmt.Errorf("invalid source kind %q, must be one of: %v", c.Source.Kind, ValidSourceKinds())
	}
	if c.Source.Kind == "file" && c.Source.Path == "" {
		return fmt.Errorf("source kind \"file\" requires a path")
	}
	if c.Source.PositionInterval < 0 {
		return fmt.Errorf("position_interval must not be negative")
	}

	if c.Shutdown.Timeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative")
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// SocketMode parses the configured socket permission bits.
// An empty mode leaves the socket permissions to the process umask.
func (c *DaemonConfig) SocketMode() (os.FileMode, error) {
	if c.Socket.Mode == "" {
		return 0, nil
	}
	mode, err := strconv.ParseUint(c.Socket.Mode, 8, 32)
	if err != nil || mode > 0777 {
		return 0, fmt.Errorf("invalid socket mode %q, must be octal like \"0600\"", c.Socket.Mode)
	}
	return os.FileMode(mode), nil
}

// SocketPath returns the socket path with ~ expanded.
func (c *DaemonConfig) SocketPath() string {
	return expandPath(c.Socket.Path)
}

// ParseLogLevel converts a level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q, must be one of: %v", level, ValidLogLevels())
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
