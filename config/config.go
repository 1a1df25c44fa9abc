// Package config loads, validates, and watches the Moneta service
// configuration. Sources merge in precedence order: built-in defaults,
// system config, user config, project config, then MONETA_* environment
// variables.
package config

import "time"

// Config represents the core Moneta configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Run      RunConfig      `mapstructure:"run"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the Moneta HTTP server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // Server port: nil = default 8000, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort matches the port the original service listened on
const DefaultServerPort = 8000

// PipelineConfig configures the external analysis pipeline client
type PipelineConfig struct {
	URL               string  `mapstructure:"url"`                 // Base URL of the pipeline service
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // Upstream pacing (0 = unpaced)
}

// RunConfig configures run execution and lifecycle supervision
type RunConfig struct {
	DeadlineSeconds       int `mapstructure:"deadline_seconds"`        // Wall-clock budget per analysis execution
	ShutdownGraceSeconds  int `mapstructure:"shutdown_grace_seconds"`  // How long shutdown waits for in-flight runs
	ReaperIntervalSeconds int `mapstructure:"reaper_interval_seconds"` // How often the stuck-run reaper sweeps
	StuckAfterSeconds     int `mapstructure:"stuck_after_seconds"`     // Running runs older than this are failed (0 = reaper disabled)
}

// Deadline returns the per-execution wall-clock budget
func (r *RunConfig) Deadline() time.Duration {
	return time.Duration(r.DeadlineSeconds) * time.Second
}

// ShutdownGrace returns how long shutdown waits for in-flight runs
func (r *RunConfig) ShutdownGrace() time.Duration {
	return time.Duration(r.ShutdownGraceSeconds) * time.Second
}

// ReaperInterval returns how often the stuck-run reaper sweeps
func (r *RunConfig) ReaperInterval() time.Duration {
	return time.Duration(r.ReaperIntervalSeconds) * time.Second
}

// StuckAfter returns the reaper's staleness deadline
func (r *RunConfig) StuckAfter() time.Duration {
	return time.Duration(r.StuckAfterSeconds) * time.Second
}

// LogConfig configures logging output
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	JSON  bool   `mapstructure:"json"`  // JSON output for log aggregation (default: console encoder)
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
