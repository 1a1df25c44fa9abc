package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moneta-labs/moneta/config"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Moneta configuration",
	Long: `config — Manage Moneta configuration

Display and manage Moneta configuration settings.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (MONETA_* prefix)
3. Project config (./moneta.toml or ./config.toml, searches up directories)
4. User config (~/.moneta/moneta.toml or ~/.moneta/config.toml)
5. System config (/etc/moneta/config.toml)
6. Default values

Examples:
  moneta config show                    # Show current configuration
  moneta config show --format json      # Show configuration in JSON format
  moneta config get database.path       # Get specific config value
  moneta config validate                # Validate current configuration
  moneta config init                    # Write a default user config file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current Moneta configuration from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, run.deadline_seconds)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current Moneta configuration is valid",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default user config file",
	Long:  "Write a commented default configuration to ~/.moneta/moneta.toml for editing",
	RunE:  runConfigInit,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which files exist.

Lists all configuration sources in order of precedence, showing
which files exist and which are missing.`,
	RunE: runConfigWhere,
}

var configFormat string

func init() {
	// Add flags
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	// Add subcommands
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Marshal to requested format
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# Moneta configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# Moneta configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	// Check if key exists in configuration
	v := config.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	// Get the value as interface{} to preserve type
	value := config.Get(key)
	fmt.Println(value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := config.DefaultUserConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (edit it directly, or remove it first)", configPath)
	}

	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	fmt.Printf("✓ Wrote default configuration to %s\n", configPath)
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	homeDir, _ := os.UserHomeDir()
	monetaDir := filepath.Join(homeDir, ".moneta")

	// Same cascade Load() merges, lowest precedence first
	candidates := []struct {
		label string
		path  string
	}{
		{"SYSTEM ", "/etc/moneta/config.toml"},
		{"USER   ", filepath.Join(monetaDir, "moneta.toml")},
		{"USER   ", filepath.Join(monetaDir, "config.toml")},
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]  Built-in defaults")
	fmt.Println("  2. [SYSTEM]   /etc/moneta/config.toml")
	fmt.Println("  3. [USER]     ~/.moneta/moneta.toml or ~/.moneta/config.toml")
	fmt.Println("  4. [PROJECT]  ./moneta.toml or ./config.toml (searches up directories)")
	fmt.Println("  5. [ENV]      MONETA_* environment variables")
	fmt.Println()

	fmt.Println("Config files:")
	for _, c := range candidates {
		if _, err := os.Stat(c.path); err == nil {
			fmt.Printf("  [%s] %s (exists)\n", c.label, c.path)
		} else {
			fmt.Printf("  [%s] %s (missing)\n", c.label, c.path)
		}
	}

	// Project config is found by walking up from the working directory
	if startDir, err := os.Getwd(); err == nil {
		dir := startDir
		found := false
		for {
			for _, name := range []string{"moneta.toml", "config.toml"} {
				p := filepath.Join(dir, name)
				if _, err := os.Stat(p); err == nil {
					fmt.Printf("  [PROJECT] %s (exists)\n", p)
					found = true
					break
				}
			}
			if found {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
		if !found {
			fmt.Printf("  [PROJECT] no moneta.toml or config.toml found above %s\n", startDir)
		}
	}

	return nil
}
