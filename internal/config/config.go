// Package config loads envstate settings from a TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file name inside Dir.
const FileName = "config.toml"

// Backends for the environment document.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string ("45s").
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Timeouts bound external commands.
type Timeouts struct {
	Scan        Duration `toml:"scan"`
	UpdateCheck Duration `toml:"update_check"`
	Verify      Duration `toml:"verify"`
	Command     Duration `toml:"command"`
}

// Advisor configures the external advisory service.
type Advisor struct {
	Endpoint  string   `toml:"endpoint"`
	APIKeyEnv string   `toml:"api_key_env"`
	Model     string   `toml:"model"`
	Timeout   Duration `toml:"timeout"`
}

// APIKey reads the key from the configured environment variable.
func (a Advisor) APIKey() string {
	if a.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.APIKeyEnv)
}

// Config is the full settings file.
type Config struct {
	StatePath    string   `toml:"state_path"`
	StateBackend string   `toml:"state_backend"`
	DBPath       string   `toml:"db_path"`
	RestoreDir   string   `toml:"restore_dir"`
	ExportDir    string   `toml:"export_dir"`
	LogLevel     string   `toml:"log_level"`
	LogFormat    string   `toml:"log_format"`
	Timeouts     Timeouts `toml:"timeouts"`
	Advisor      Advisor  `toml:"advisor"`
	// Aliases maps a command name to the package that provides it
	// (rg = "ripgrep").
	Aliases map[string]string `toml:"aliases"`
}

// Dir returns the envstate config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/envstate if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "envstate"), nil
}

// DataDir returns ~/.envstate, where state, database and restore points
// live by default.
func DataDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".envstate"), nil
}

// Default returns the settings used when no file exists.
func Default() (*Config, error) {
	data, err := DataDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		StatePath:    filepath.Join(data, "environment.json"),
		StateBackend: BackendJSON,
		DBPath:       filepath.Join(data, "envstate.db"),
		RestoreDir:   filepath.Join(data, "restore"),
		ExportDir:    filepath.Join(data, "exports"),
		LogLevel:     "info",
		LogFormat:    "text",
		Timeouts: Timeouts{
			Scan:        Duration(45 * time.Second),
			UpdateCheck: Duration(45 * time.Second),
			Verify:      Duration(10 * time.Second),
			Command:     Duration(30 * time.Minute),
		},
		Advisor: Advisor{
			APIKeyEnv: "ENVSTATE_ADVISOR_KEY",
			Timeout:   Duration(60 * time.Second),
		},
		Aliases: map[string]string{},
	}, nil
}

// Load reads path over the defaults. An empty path means Dir()/config.toml;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		path = filepath.Join(dir, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(data, path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data into cfg, rejecting unknown keys, then expands paths
// and validates. source names the data in errors.
func Parse(data []byte, source string, cfg *Config) error {
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, source, err)
	}
	if err := cfg.expand(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	return nil
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.StatePath, &c.DBPath, &c.RestoreDir, &c.ExportDir} {
		v, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = v
	}
	return nil
}

// Validate checks enumerated values and required paths.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("%w: state_backend must be %q or %q, got %q", ErrInvalid, BackendJSON, BackendSQLite, c.StateBackend)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q is not one of debug, info, warn, error", ErrInvalid, c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	if c.StatePath == "" || c.DBPath == "" {
		return fmt.Errorf("%w: state_path and db_path are required", ErrInvalid)
	}
	for name, d := range map[string]Duration{
		"timeouts.scan":         c.Timeouts.Scan,
		"timeouts.update_check": c.Timeouts.UpdateCheck,
		"timeouts.verify":       c.Timeouts.Verify,
		"timeouts.command":      c.Timeouts.Command,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}
	return nil
}

// ResolveAlias maps a command name to its package, or returns name.
func (c *Config) ResolveAlias(name string) string {
	if pkg, ok := c.Aliases[name]; ok && pkg != "" {
		return pkg
	}
	return name
}
