package cmd

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/pubsub/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify pubsub configuration",
	Long: `View or modify pubsub configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  pubsub config set output.format json
  pubsub config set watch.debounce_ms 500

Valid keys:
  logging.enabled        - Write a JSON log file (true/false)
  logging.level          - debug, info, warn, error
  logging.dir            - Log directory (default: XDG state dir)
  logging.max_size_mb    - Rotate the log file at this size
  logging.max_backups    - Rotated files to keep
  output.format          - text or json
  output.color           - auto, always or never
  watch.debounce_ms      - Delay before re-running a changed script
  script.stop_on_failure - Stop at the first unmet expectation (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at $XDG_CONFIG_HOME/pubsub/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  dir: %s\n", cfg.Logging.ResolveDir())
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)

	fmt.Fprintln(out, "output:")
	fmt.Fprintf(out, "  format: %s\n", cfg.Output.Format)
	fmt.Fprintf(out, "  color: %s\n", cfg.Output.Color)

	fmt.Fprintln(out, "watch:")
	fmt.Fprintf(out, "  debounce_ms: %d\n", cfg.Watch.DebounceMs)

	fmt.Fprintln(out, "script:")
	fmt.Fprintf(out, "  stop_on_failure: %v\n", cfg.Script.StopOnFailure)

	return nil
}

// settableKeys maps each key accepted by config set to its value kind.
var settableKeys = map[string]string{
	"logging.enabled":        "bool",
	"logging.level":          "string",
	"logging.dir":            "string",
	"logging.max_size_mb":    "int",
	"logging.max_backups":    "int",
	"output.format":          "string",
	"output.color":           "string",
	"watch.debounce_ms":      "int",
	"script.stop_on_failure": "bool",
}

// enumValues lists the accepted values of string keys with a fixed set.
var enumValues = map[string][]string{
	"logging.level": config.ValidLogLevels(),
	"output.format": config.ValidOutputFormats(),
	"output.color":  config.ValidColorModes(),
}

func parseConfigValue(key, value string) (any, error) {
	keyType, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'pubsub config set --help' to see valid keys", key)
	}

	switch keyType {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return intVal, nil
	default:
		if valid, ok := enumValues[key]; ok && !slices.Contains(valid, value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(valid, ", "))
		}
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typedValue)

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)

	return nil
}

const defaultConfigContent = `# pubsub configuration

# Debug logging. Entries are JSON lines in <dir>/pubsub.log.
logging:
  enabled: false
  # debug, info, warn, error
  level: info
  # Empty uses $XDG_STATE_HOME/pubsub
  dir: ""
  max_size_mb: 10
  max_backups: 3

# How run and inspect print results
output:
  # text or json
  format: text
  # auto colours only on a terminal; always, never
  color: auto

# run --watch
watch:
  # Delay after the last change before a script is re-run
  debounce_ms: 200

script:
  # Stop a script at its first unmet expectation
  stop_on_failure: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'pubsub config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: PUBSUB_* (e.g., PUBSUB_LOGGING_LEVEL), %s overrides the config directory\n", config.EnvConfigDir)

	return nil
}
