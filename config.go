package krema

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds everything a krema application reads at startup. Values come
// from an optional YAML file, then KREMA_* environment overrides, in that
// order. Fields carry no envconfig name tags: an explicit tag also registers
// an unprefixed alternate, and only KREMA_* variables may override.
type Config struct {
	// App is the application name, used in logs and the ready handshake.
	App string `yaml:"app" validate:"required"`

	Window   WindowConfig   `yaml:"window"`
	Log      LogConfig      `yaml:"log"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// WindowConfig describes the main window the transport opens.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width" validate:"gte=0"`
	Height int    `yaml:"height" validate:"gte=0"`
	// URL is where the webview navigates on start. Typically a bundled
	// asset URL in production and a dev server address during
	// development.
	URL string `yaml:"url"`
}

// LogConfig controls the zap logger built by NewLogger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
	// File enables a rotating log file next to console output. Desktop
	// applications have no terminal in production, so the file is
	// usually the only place logs survive.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" split_words:"true" validate:"gte=0"`
}

// DispatchConfig tunes command execution.
type DispatchConfig struct {
	// MaxConcurrent bounds how many commands run at once. 0 means one
	// goroutine per call with no bound.
	MaxConcurrent int `yaml:"max_concurrent" split_words:"true" validate:"gte=0"`
}

// BridgeConfig controls the frontend bridge handshake.
type BridgeConfig struct {
	// Constraint is a semver range the bridge script's announced version
	// must satisfy, e.g. "^2.0".
	Constraint string `yaml:"constraint" validate:"required"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() Config {
	return Config{
		App: "krema",
		Window: WindowConfig{
			Title:  "krema",
			Width:  1024,
			Height: 768,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Bridge: BridgeConfig{
			Constraint: "^2.0",
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then KREMA_* environment variables, then
// validation. A named file that does not exist is an error; relying on
// defaults is not.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("krema", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the bridge constraint parses as
// a semver range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := semver.NewConstraint(c.Bridge.Constraint); err != nil {
		return fmt.Errorf("invalid bridge constraint %q: %w", c.Bridge.Constraint, err)
	}
	return nil
}
