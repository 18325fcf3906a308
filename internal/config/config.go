// Package config holds the profiler's environment-driven configuration.
package config

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"
)

const (
	// EnvLogsDir names the directory that receives result_<pid>.csv.
	EnvLogsDir = "PROC_IO_PROFILER_LOGS"
	// EnvLogLevel sets the level of diagnostics written to stderr.
	EnvLogLevel = "PROC_IO_PROFILER_LOG_LEVEL"

	// DefaultLogsDir is the current working directory of the host process.
	DefaultLogsDir = "."
	// DefaultLogLevel keeps the host's stderr quiet unless something fails.
	DefaultLogLevel = "warn"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// Config is the complete profiler configuration.
type Config struct {
	Report  ReportConfig
	Logging LoggingConfig
}

// ReportConfig controls where the report is written.
type ReportConfig struct {
	Dir string `env:"PROC_IO_PROFILER_LOGS"`
}

// LoggingConfig controls diagnostics.
type LoggingConfig struct {
	Level string `env:"PROC_IO_PROFILER_LOG_LEVEL"`
}

// Default returns a config with defaults for every field.
func Default() *Config {
	return &Config{
		Report:  ReportConfig{Dir: DefaultLogsDir},
		Logging: LoggingConfig{Level: DefaultLogLevel},
	}
}

// Load builds the config from defaults overlaid with the process
// environment. A field that fails validation is reset to its default and the
// returned error names it; the returned config is always usable.
func Load() (*Config, error) {
	cfg := Default()
	if err := LoadFromEnv(cfg); err != nil {
		return Default(), fmt.Errorf("failed to load config from environment: %w", err)
	}
	return cfg, cfg.resetInvalid()
}

// Validate checks field values.
func (c *Config) Validate() error {
	return multierr.Combine(c.Report.validate(), c.Logging.validate())
}

func (c *Config) resetInvalid() error {
	defaults := Default()

	reportErr := c.Report.validate()
	if reportErr != nil {
		c.Report = defaults.Report
	}
	loggingErr := c.Logging.validate()
	if loggingErr != nil {
		c.Logging = defaults.Logging
	}
	return multierr.Combine(reportErr, loggingErr)
}

func (r ReportConfig) validate() error {
	if r.Dir == "" {
		return fmt.Errorf("report directory cannot be empty")
	}
	return nil
}

func (l LoggingConfig) validate() error {
	if !slices.Contains(validLogLevels, l.Level) {
		return fmt.Errorf("invalid log level %q for %s (valid: %v)", l.Level, EnvLogLevel, validLogLevels)
	}
	return nil
}
