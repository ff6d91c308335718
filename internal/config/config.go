package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the config and state directories.
const AppName = "pubsub"

// EnvConfigDir overrides the config directory when set.
const EnvConfigDir = "PUBSUB_CONFIG_DIR"

// Config represents the complete pubsub configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Script  ScriptConfig  `mapstructure:"script"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes a JSON log file; when false nothing is logged
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum level recorded: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir holds pubsub.log (default: "" uses the XDG state directory)
	Dir string `mapstructure:"dir"`
	// MaxSizeMB rotates the log file once it reaches this size
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups"`
}

// OutputConfig controls how run results are printed
type OutputConfig struct {
	// Format is "text" or "json" (default: "text")
	Format string `mapstructure:"format"`
	// Color is "auto", "always" or "never". Auto colours only on a terminal.
	Color string `mapstructure:"color"`
}

// WatchConfig controls run --watch
type WatchConfig struct {
	// DebounceMs coalesces bursts of file events (default: 200)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// ScriptConfig controls the scenario runner
type ScriptConfig struct {
	// StopOnFailure ends a script at the first unmet expectation
	StopOnFailure bool `mapstructure:"stop_on_failure"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
		Watch: WatchConfig{
			DebounceMs: 200,
		},
		Script: ScriptConfig{
			StopOnFailure: false,
		},
	}
}

// Debounce returns DebounceMs as a time.Duration.
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ResolveDir returns the log directory, expanding a leading ~ and falling
// back to the XDG state directory.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return filepath.Join(xdg.StateHome, AppName)
	}
	return expandHome(c.Dir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Output defaults
	viper.SetDefault("output.format", defaults.Output.Format)
	viper.SetDefault("output.color", defaults.Output.Color)

	// Watch defaults
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)

	// Script defaults
	viper.SetDefault("script.stop_on_failure", defaults.Script.StopOnFailure)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return expandHome(dir)
	}
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
