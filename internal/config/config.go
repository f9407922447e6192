package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the trace viewer.
type Config struct {
	ListenAddr    string  `yaml:"listen_addr"`
	DataDirectory string  `yaml:"data_directory"`
	WatchFile     string  `yaml:"watch_file"`
	Storage       Storage `yaml:"storage"`
	Log           Log     `yaml:"log"`
}

// Storage selects where the current trace snapshot is persisted.
type Storage struct {
	Driver string `yaml:"driver"`
	Key    string `yaml:"key"`
}

// Log controls the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		DataDirectory: filepath.Join(".dist", "data"),
		Storage: Storage{
			Driver: "file",
			Key:    "trace",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	defaults := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.DataDirectory == "" {
		c.DataDirectory = defaults.DataDirectory
	}
	if c.Storage.Key == "" {
		c.Storage.Key = defaults.Storage.Key
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = defaults.Storage.Driver
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage driver %q is not supported", c.Storage.Driver)
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "":
		c.Log.Format = defaults.Log.Format
	case "text", "json":
	default:
		return fmt.Errorf("log format %q is not supported", c.Log.Format)
	}
	return nil
}
