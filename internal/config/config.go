package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fitkeep/fitdb"
)

// Config represents the configuration of the fitdb tools
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig contains storage settings
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	Backend     string        `yaml:"backend"`
	Encoding    string        `yaml:"encoding"`
	Compression string        `yaml:"compression"`
	MmapSize    int           `yaml:"mmap_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Verbose     bool          `yaml:"verbose"`

	// PurgeJournal is a directory receiving every entry deleted by purge.
	PurgeJournal string `yaml:"purge_journal"`
}

// LogConfig contains logging settings. File enables a rotated log file in
// addition to stderr.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
	MaxSizeKB   int64  `yaml:"max_size_kb"`
	MaxRolls    int    `yaml:"max_rolls"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Path:        "fitdb.db",
			Backend:     "bolt",
			Encoding:    "msgpack",
			Compression: "none",
			Timeout:     10 * time.Second,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeKB: 10 * 1024,
			MaxRolls:  3,
		},
	}
}

// Load reads the YAML file at path on top of Default. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := c.Options(nil); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MmapSize < 0 {
		return fmt.Errorf("database.mmap_size must not be negative")
	}
	if c.Log.File != "" && (c.Log.MaxSizeKB <= 0 || c.Log.MaxRolls < 0) {
		return fmt.Errorf("log.max_size_kb must be positive and log.max_rolls non-negative")
	}
	return nil
}

// Options maps the database settings onto fitdb.Options.
func (c Config) Options(logger *zap.Logger) (fitdb.Options, error) {
	backend, err := fitdb.ParseBackend(c.Database.Backend)
	if err != nil {
		return fitdb.Options{}, fmt.Errorf("database.backend: %w", err)
	}
	enc, err := fitdb.ParseValueEncoding(c.Database.Encoding)
	if err != nil {
		return fitdb.Options{}, fmt.Errorf("database.encoding: %w", err)
	}
	comp, err := fitdb.ParseCompression(c.Database.Compression)
	if err != nil {
		return fitdb.Options{}, fmt.Errorf("database.compression: %w", err)
	}
	return fitdb.Options{
		Backend:     backend,
		Encoding:    enc,
		Compression: comp,
		Logger:      logger,
		Verbose:     c.Database.Verbose,
		MmapSize:    c.Database.MmapSize,
		Timeout:     c.Database.Timeout,
	}, nil
}
