package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "moneta.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"*"}) // Original service shipped open CORS

	// Analysis pipeline defaults
	v.SetDefault("pipeline.url", "http://localhost:9000")
	v.SetDefault("pipeline.requests_per_minute", 30.0)

	// Run lifecycle defaults
	v.SetDefault("run.deadline_seconds", 120)       // Well under the polling client's 3-minute budget
	v.SetDefault("run.shutdown_grace_seconds", 30)  // Window for terminal writes to land
	v.SetDefault("run.reaper_interval_seconds", 30) // Stuck-run sweep cadence
	v.SetDefault("run.stuck_after_seconds", 300)    // Longer than the deadline, so live runs settle first

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds deployment-specific configuration
// to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "MONETA_DATABASE_PATH")

	// Analysis pipeline endpoint
	v.BindEnv("pipeline.url", "MONETA_PIPELINE_URL")

	// Server port
	v.BindEnv("server.port", "MONETA_SERVER_PORT")
}

// GetServerPort returns the configured server port, or DefaultServerPort
// when the config omits it
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil || *c.Server.Port == 0 {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "moneta.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.Server.AllowedOrigins
}
