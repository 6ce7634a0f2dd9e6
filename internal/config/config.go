// Package config loads xlport settings from the environment. Values in a
// .env file in the working directory are applied first without overriding
// variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nconklindev/xlport/internal/types"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	EnvOutputDir = "XLPORT_OUTPUT_DIR"
	EnvFormat    = "XLPORT_FORMAT"
	EnvLogLevel  = "XLPORT_LOG_LEVEL"
	EnvLogFile   = "XLPORT_LOG_FILE"
)

type Config struct {
	// OutputDir is where converted files are written (default: ~/Desktop,
	// or the working directory when there is no Desktop)
	OutputDir string

	// Format is the default output format (default: db)
	Format types.Format

	// LogLevel is a zerolog level name (default: info)
	LogLevel string

	// LogFile receives logs when set. The TUI discards logs without it.
	LogFile string
}

// Load reads the optional env files (".env" when none are given) and then
// the XLPORT_* variables.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config load %s: %w", f, err)
		}
	}

	cfg := &Config{
		OutputDir: os.Getenv(EnvOutputDir),
		Format:    types.FormatDatabase,
		LogLevel:  getenv(EnvLogLevel, "info"),
		LogFile:   os.Getenv(EnvLogFile),
	}

	if v := os.Getenv(EnvFormat); v != "" {
		format, err := types.ParseFormat(v)
		if err != nil {
			return nil, fmt.Errorf("config validation: %s: %w", EnvFormat, err)
		}
		cfg.Format = format
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that can be wrong independently of the
// environment they came from.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", EnvLogLevel, err)
	}
	if c.OutputDir == "" {
		return errors.New("output directory is empty")
	}
	return nil
}

// DefaultOutputDir returns the user's Desktop when it exists, otherwise
// the working directory.
func DefaultOutputDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		desktop := filepath.Join(home, "Desktop")
		if info, err := os.Stat(desktop); err == nil && info.IsDir() {
			return desktop
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
