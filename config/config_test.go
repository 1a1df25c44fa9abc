package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// validConfig returns a config that passes Validate, for tables that
// mutate one field at a time
func validConfig() Config {
	return Config{
		Pipeline: PipelineConfig{URL: "http://localhost:9000", RequestsPerMinute: 30},
		Run: RunConfig{
			DeadlineSeconds:       120,
			ShutdownGraceSeconds:  30,
			ReaperIntervalSeconds: 30,
			StuckAfterSeconds:     300,
		},
		Log: LogConfig{Level: "info"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	// Load config from isolated viper
	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	// Check default values are applied
	if cfg.Database.Path != "moneta.db" {
		t.Errorf("expected default database path 'moneta.db', got %q", cfg.Database.Path)
	}

	if cfg.GetServerPort() != DefaultServerPort {
		t.Errorf("expected default port %d, got %d", DefaultServerPort, cfg.GetServerPort())
	}

	if cfg.Pipeline.URL != "http://localhost:9000" {
		t.Errorf("expected default pipeline URL, got %q", cfg.Pipeline.URL)
	}

	if cfg.Run.DeadlineSeconds != 120 {
		t.Errorf("expected default deadline 120s, got %d", cfg.Run.DeadlineSeconds)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	zero := 0
	negative := -1
	huge := 70000

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "nil port is valid (default applies)",
			mutate:  func(c *Config) { c.Server.Port = nil },
			wantErr: false,
		},
		{
			name:    "zero port is invalid",
			mutate:  func(c *Config) { c.Server.Port = &zero },
			wantErr: true,
		},
		{
			name:    "negative port is invalid",
			mutate:  func(c *Config) { c.Server.Port = &negative },
			wantErr: true,
		},
		{
			name:    "port above 65535 is invalid",
			mutate:  func(c *Config) { c.Server.Port = &huge },
			wantErr: true,
		},
		{
			name:    "empty pipeline URL is invalid",
			mutate:  func(c *Config) { c.Pipeline.URL = "" },
			wantErr: true,
		},
		{
			name:    "zero pacing is valid (unpaced)",
			mutate:  func(c *Config) { c.Pipeline.RequestsPerMinute = 0 },
			wantErr: false,
		},
		{
			name:    "negative pacing is invalid",
			mutate:  func(c *Config) { c.Pipeline.RequestsPerMinute = -1 },
			wantErr: true,
		},
		{
			name:    "zero deadline is invalid (unbounded runs)",
			mutate:  func(c *Config) { c.Run.DeadlineSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "negative deadline is invalid",
			mutate:  func(c *Config) { c.Run.DeadlineSeconds = -5 },
			wantErr: true,
		},
		{
			name:    "zero stuck deadline is valid (reaper disabled)",
			mutate:  func(c *Config) { c.Run.StuckAfterSeconds = 0 },
			wantErr: false,
		},
		{
			name:    "negative stuck deadline is invalid",
			mutate:  func(c *Config) { c.Run.StuckAfterSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "empty log level is valid (default applies)",
			mutate:  func(c *Config) { c.Log.Level = "" },
			wantErr: false,
		},
		{
			name:    "unknown log level is invalid",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	// Verify critical defaults are set
	tests := []struct {
		key      string
		expected interface{}
	}{
		{"database.path", "moneta.db"},
		{"server.port", DefaultServerPort},
		{"pipeline.url", "http://localhost:9000"},
		{"run.deadline_seconds", 120},
		{"run.stuck_after_seconds", 300},
		{"log.level", "info"},
		{"log.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := v.Get(tt.key)
			if got != tt.expected {
				t.Errorf("default %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	run := RunConfig{
		DeadlineSeconds:       120,
		ShutdownGraceSeconds:  30,
		ReaperIntervalSeconds: 45,
		StuckAfterSeconds:     300,
	}

	if run.Deadline() != 2*time.Minute {
		t.Errorf("Deadline() = %v, want 2m", run.Deadline())
	}
	if run.ShutdownGrace() != 30*time.Second {
		t.Errorf("ShutdownGrace() = %v, want 30s", run.ShutdownGrace())
	}
	if run.ReaperInterval() != 45*time.Second {
		t.Errorf("ReaperInterval() = %v, want 45s", run.ReaperInterval())
	}
	if run.StuckAfter() != 5*time.Minute {
		t.Errorf("StuckAfter() = %v, want 5m", run.StuckAfter())
	}
}

func TestFindProjectConfig(t *testing.T) {
	// Create temporary directory structure
	tmpDir := t.TempDir()

	// Test 1: moneta.toml preferred over config.toml
	t.Run("prefers moneta.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		// Create both config files
		os.WriteFile(filepath.Join(tmpDir, "test1", "moneta.toml"), []byte(""), DefaultFilePermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", "config.toml"), []byte(""), DefaultFilePermissions)

		// Change to subdirectory
		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Error("expected to find config file")
		}
		if filepath.Base(result) != "moneta.toml" {
			t.Errorf("expected moneta.toml, got %s", filepath.Base(result))
		}
	})

	// Test 2: Falls back to config.toml if moneta.toml not present
	t.Run("fallback to config.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test2", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		// Create only config.toml
		os.WriteFile(filepath.Join(tmpDir, "test2", "config.toml"), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Error("expected to find config file")
		}
		if filepath.Base(result) != "config.toml" {
			t.Errorf("expected config.toml, got %s", filepath.Base(result))
		}
	})

	// Test 3: Returns empty string when no config found
	t.Run("no config found", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test3", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "moneta.toml")

	if err := WriteDefault(configPath); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	// The written file loads back with the same defaults
	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Database.Path != "moneta.db" {
		t.Errorf("expected database path 'moneta.db', got %q", cfg.Database.Path)
	}
	if cfg.GetServerPort() != DefaultServerPort {
		t.Errorf("expected port %d, got %d", DefaultServerPort, cfg.GetServerPort())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written defaults failed validation: %v", err)
	}

	// A second write rotates the original into .back1
	if err := WriteDefault(configPath); err != nil {
		t.Fatalf("second WriteDefault() failed: %v", err)
	}
	if _, err := os.Stat(configPath + ".back1"); err != nil {
		t.Errorf("expected backup file after rewrite: %v", err)
	}
}

func TestGetDatabasePathMethod(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	path := cfg.GetDatabasePath()
	if path != "moneta.db" {
		t.Errorf("expected default path 'moneta.db', got %q", path)
	}

	// Empty path falls back to the default
	empty := Config{}
	if empty.GetDatabasePath() != "moneta.db" {
		t.Errorf("expected fallback path 'moneta.db', got %q", empty.GetDatabasePath())
	}
}

func TestGetServerAllowedOrigins(t *testing.T) {
	// Unset origins fall back to open CORS like the original service
	empty := Config{}
	origins := empty.GetServerAllowedOrigins()
	if len(origins) != 1 || origins[0] != "*" {
		t.Errorf("expected [*], got %v", origins)
	}

	// Configured origins pass through unchanged
	cfg := Config{Server: ServerConfig{AllowedOrigins: []string{"https://moneta.example.com"}}}
	origins = cfg.GetServerAllowedOrigins()
	if len(origins) != 1 || origins[0] != "https://moneta.example.com" {
		t.Errorf("expected configured origin, got %v", origins)
	}
}
