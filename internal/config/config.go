package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/inject"
	"github.com/voxtype/voxtype/internal/target"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string                    `yaml:"log_level"`
	Backend     string                    `yaml:"backend"` // "robotgo" or "keybd"
	Inject      InjectConfig              `yaml:"inject"`
	Monitor     MonitorConfig             `yaml:"monitor"`
	Hotkey      HotkeyConfig              `yaml:"hotkey"`
	HistoryPath string                    `yaml:"history_path"`
	Notify      bool                      `yaml:"notify"`
	Overrides   map[string]OverrideConfig `yaml:"overrides"`
}

// InjectConfig holds delivery settings.
type InjectConfig struct {
	Method      string `yaml:"method"` // "auto", "type" or "paste"
	Retries     int    `yaml:"retries"`
	CharDelayMS int    `yaml:"char_delay_ms"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	BusyPolicy  string `yaml:"busy_policy"` // "queue" or "reject"
}

// MonitorConfig sizes the reliability monitor.
type MonitorConfig struct {
	Capacity      int `yaml:"capacity"`
	WindowMinutes int `yaml:"window_minutes"`
}

// HotkeyConfig holds the pause/resume hotkey settings.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
	Mode string   `yaml:"mode"` // "hold" or "toggle"
}

// OverrideConfig adjusts one application category's delivery profile. Nil
// pointer fields leave the built-in value untouched.
type OverrideConfig struct {
	Method            string   `yaml:"method"`
	Compatible        *bool    `yaml:"compatible"`
	Flags             []string `yaml:"flags"`
	ClipboardFallback *bool    `yaml:"clipboard_fallback"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voxtype")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backend:  "robotgo",
		Inject: InjectConfig{
			Method:      "auto",
			Retries:     3,
			CharDelayMS: 5,
			TimeoutMS:   10000,
			BusyPolicy:  "queue",
		},
		Monitor: MonitorConfig{
			Capacity:      1000,
			WindowMinutes: 5,
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "space"},
			Mode: "toggle",
		},
		Notify: true,
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in history_path is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.HistoryPath = expandTilde(cfg.HistoryPath)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.Backend {
	case "robotgo", "keybd":
	default:
		return fmt.Errorf("backend must be \"robotgo\" or \"keybd\", got %q", c.Backend)
	}

	if _, err := compat.ParseMethod(c.Inject.Method); err != nil {
		return fmt.Errorf("inject.method: %w", err)
	}
	if c.Inject.Retries < 0 {
		return fmt.Errorf("inject.retries must be >= 0, got %d", c.Inject.Retries)
	}
	if c.Inject.CharDelayMS < 0 {
		return fmt.Errorf("inject.char_delay_ms must be >= 0, got %d", c.Inject.CharDelayMS)
	}
	if c.Inject.TimeoutMS <= 0 {
		return fmt.Errorf("inject.timeout_ms must be > 0, got %d", c.Inject.TimeoutMS)
	}
	switch c.Inject.BusyPolicy {
	case "queue", "reject":
	default:
		return fmt.Errorf("inject.busy_policy must be \"queue\" or \"reject\", got %q", c.Inject.BusyPolicy)
	}

	if c.Monitor.Capacity <= 0 {
		return fmt.Errorf("monitor.capacity must be > 0, got %d", c.Monitor.Capacity)
	}
	if c.Monitor.WindowMinutes <= 0 {
		return fmt.Errorf("monitor.window_minutes must be > 0, got %d", c.Monitor.WindowMinutes)
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}
	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	for name, ov := range c.Overrides {
		if _, err := target.ParseApp(name); err != nil {
			return fmt.Errorf("overrides: %w", err)
		}
		if ov.Method != "" {
			if _, err := compat.ParseMethod(ov.Method); err != nil {
				return fmt.Errorf("overrides.%s.method: %w", name, err)
			}
		}
		for _, f := range ov.Flags {
			if _, err := compat.ParseFlag(f); err != nil {
				return fmt.Errorf("overrides.%s.flags: %w", name, err)
			}
		}
	}

	return nil
}

// Options translates the inject section into engine options.
func (c *Config) Options() inject.Options {
	m, _ := compat.ParseMethod(c.Inject.Method)
	return inject.Options{
		Method:    m,
		Retries:   c.Inject.Retries,
		CharDelay: time.Duration(c.Inject.CharDelayMS) * time.Millisecond,
		Timeout:   time.Duration(c.Inject.TimeoutMS) * time.Millisecond,
	}
}

// Policy translates the busy_policy setting.
func (c *Config) Policy() inject.Policy {
	if c.Inject.BusyPolicy == "reject" {
		return inject.PolicyReject
	}
	return inject.PolicyQueue
}

// Window returns the monitor window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Monitor.WindowMinutes) * time.Minute
}

// ApplyOverrides folds the overrides section into the registry. Call
// Validate first; invalid names or values are skipped here.
func (c *Config) ApplyOverrides(reg *compat.Registry) {
	for name, ov := range c.Overrides {
		app, err := target.ParseApp(name)
		if err != nil {
			continue
		}
		p := reg.Lookup(app)
		if ov.Method != "" {
			if m, err := compat.ParseMethod(ov.Method); err == nil {
				p.Preferred = m
			}
		}
		if ov.Compatible != nil {
			p.Compatible = *ov.Compatible
		}
		if ov.Flags != nil {
			p.Handling = make(map[compat.Flag]bool)
			for _, raw := range ov.Flags {
				if f, err := compat.ParseFlag(raw); err == nil {
					p.Handling[f] = true
				}
			}
		}
		if ov.ClipboardFallback != nil {
			if p.Settings == nil {
				p.Settings = make(map[string]bool)
			}
			p.Settings[compat.SettingClipboardFallback] = *ov.ClipboardFallback
		}
		reg.Override(app, p)
	}
}

// WriteDefault writes a commented default config to the standard path if
// no config file exists yet. It returns the written path, or "" when a
// config was already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if path == "" {
		return "", fmt.Errorf("cannot determine config path")
	}
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(DefaultConfigDir(), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	header := "# voxtype configuration\n# See the README for per-application overrides.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a config log level string to a slog level. Unknown
// values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
