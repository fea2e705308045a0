// Package config loads the application configuration.
//
// Values come from three layers, each overriding the previous one:
// built-in defaults, an optional YAML file, then SCALE_MCP_* environment
// variables. A .env file, when present, is loaded into the environment by the
// command before Load runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/sheet-scale-mcp/internal/imaging"
	"github.com/ironsheep/sheet-scale-mcp/internal/logging"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCALE_MCP_"

// Config holds the application configuration.
type Config struct {
	// Scale holds the estimation thresholds.
	Scale scale.Config `yaml:"scale"`

	// Level is the binarization gray level.
	Level int `yaml:"level"`

	// Workers is the number of pages estimated in parallel.
	Workers int `yaml:"workers"`

	// CachePath is the calibration cache database; empty disables caching.
	CachePath string `yaml:"cache_path"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scale:    scale.DefaultConfig(),
		Level:    int(imaging.DefaultLevel),
		Workers:  runtime.NumCPU(),
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// decode overlays YAML on cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Level, err = getEnvAsIntOrDefault("LEVEL", c.Level); err != nil {
		return err
	}
	if c.Workers, err = getEnvAsIntOrDefault("WORKERS", c.Workers); err != nil {
		return err
	}
	if c.Scale.MinInterline, err = getEnvAsIntOrDefault("MIN_INTERLINE", c.Scale.MinInterline); err != nil {
		return err
	}
	if c.Scale.MaxInterline, err = getEnvAsIntOrDefault("MAX_INTERLINE", c.Scale.MaxInterline); err != nil {
		return err
	}
	c.CachePath = getEnvOrDefault("CACHE", c.CachePath)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	return nil
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if err := c.Scale.Validate(); err != nil {
		return err
	}
	if c.Level < 1 || c.Level > 255 {
		return fmt.Errorf("level must be between 1 and 255, got %d", c.Level)
	}
	if c.Workers < 1 || c.Workers > 256 {
		return fmt.Errorf("workers must be between 1 and 256, got %d", c.Workers)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default.
// A value that is set but not a number is an error.
func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(EnvPrefix + key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s must be an integer, got %q", EnvPrefix, key, valueStr)
	}
	return value, nil
}
