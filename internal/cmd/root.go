package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/pubsub/internal/config"
	"github.com/Iron-Ham/pubsub/internal/errors"
	"github.com/Iron-Ham/pubsub/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "pubsub",
	Short: "Run and inspect in-process publish/subscribe scenarios",
	Long: `pubsub drives an in-process publish/subscribe registry from scenario
scripts. Each script subscribes, publishes and unsubscribes handlers, and
the tool prints which handlers ran, in what order, and whether every step
produced the outcome it expected.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// scriptFs is the filesystem scripts are loaded from.
var scriptFs afero.Fs = afero.NewOsFs()

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx available to subcommands
// and reports a failure on stderr.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger, lerr := newLogger(config.Get())
		if lerr != nil {
			logger = logging.NopLogger()
		}
		reportError(rootCmd.ErrOrStderr(), logger, err)
		_ = logger.Close()
	}
	return err
}

// reportError prints err. Errors that are not meant for users, such as a
// handler failure or an I/O error, are also logged with their code.
func reportError(w io.Writer, logger *logging.Logger, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if !errors.IsUserFacing(err) {
		logger.LogError("command failed", err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/pubsub/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level when logging is enabled (debug/info/warn/error)")
	bindFlags()
}

// bindFlags connects global flags to their viper keys.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PUBSUB")
	// e.g., PUBSUB_LOGGING_LEVEL for logging.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the logger described by cfg, or a no-op logger when
// logging is disabled.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(logging.Options{
		Dir:        cfg.Logging.ResolveDir(),
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}
