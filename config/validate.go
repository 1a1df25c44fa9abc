package config

import "github.com/moneta-labs/moneta/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.New("server.port cannot be 0 (omit for default port 8000)")
	}
	if c.Server.Port != nil && (*c.Server.Port < 0 || *c.Server.Port > 65535) {
		return errors.Newf("server.port must be between 1 and 65535, got %d", *c.Server.Port)
	}

	// Pipeline URL is required - the executor has nothing to call without it
	if c.Pipeline.URL == "" {
		return errors.New("pipeline.url cannot be empty")
	}

	// Pipeline pacing: 0 = unpaced, negative = invalid
	if c.Pipeline.RequestsPerMinute < 0 {
		return errors.Newf("pipeline.requests_per_minute must be >= 0, got %f", c.Pipeline.RequestsPerMinute)
	}

	// Execution deadline: 0 would allow unbounded runs, so it is invalid
	if c.Run.DeadlineSeconds <= 0 {
		return errors.Newf("run.deadline_seconds must be > 0, got %d", c.Run.DeadlineSeconds)
	}

	// Shutdown grace: 0 = default applied at startup, negative = invalid
	if c.Run.ShutdownGraceSeconds < 0 {
		return errors.Newf("run.shutdown_grace_seconds must be >= 0, got %d", c.Run.ShutdownGraceSeconds)
	}

	// Reaper interval: 0 = default applied at startup, negative = invalid
	if c.Run.ReaperIntervalSeconds < 0 {
		return errors.Newf("run.reaper_interval_seconds must be >= 0, got %d", c.Run.ReaperIntervalSeconds)
	}

	// Stuck deadline: 0 = reaper disabled, negative = invalid
	if c.Run.StuckAfterSeconds < 0 {
		return errors.Newf("run.stuck_after_seconds must be >= 0, got %d", c.Run.StuckAfterSeconds)
	}

	// Log level must be one zap understands
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}
