package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/pubsub/internal/config"
	"github.com/Iron-Ham/pubsub/internal/logging"
	"github.com/Iron-Ham/pubsub/internal/script"
	"github.com/Iron-Ham/pubsub/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run <script>...",
	Short: "Run scenario scripts against a fresh registry",
	Long: `Run one or more scenario scripts. Each script gets its own registry.

For every step the outcome is printed, followed by the handlers the step
invoked. The command fails when any step did not produce its expected
outcome.

Scripts may be YAML (.yaml, .yml), JSON (.json) or TOML (.toml).

Examples:
  pubsub run scripts/basic.yaml
  pubsub run -o json scripts/*.yaml
  pubsub run --watch scripts/once.toml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runFormat        string
	runWatch         bool
	runStopOnFailure bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFormat, "output", "o", "", "Output format: text or json (default from output.format)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Re-run a script whenever it changes, until interrupted")
	runCmd.Flags().BoolVar(&runStopOnFailure, "stop-on-failure", false, "Stop a script at its first unmet expectation")
}

// runSession holds what run needs across the initial pass and re-runs.
type runSession struct {
	loader  *script.Loader
	runner  *script.Runner
	printer *printer
	logger  *logging.Logger

	// mu serializes output between the watcher goroutine and the caller.
	mu sync.Mutex
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	format, err := resolveFormat(runFormat, cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	s := &runSession{
		loader: script.NewLoader(scriptFs),
		runner: script.NewRunner(script.Options{
			StopOnFailure: cfg.Script.StopOnFailure || runStopOnFailure,
			Logger:        logger,
		}),
		printer: newPrinter(cmd.OutOrStdout(), format, cfg.Output.Color),
		logger:  logger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	failed := 0
	for _, path := range args {
		ok, err := s.run(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			failed++
		}
	}

	if runWatch {
		return s.watch(ctx, cmd, args, cfg)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scripts had unmet expectations", failed, len(args))
	}
	return nil
}

// run loads and executes one script and prints its result.
func (s *runSession) run(ctx context.Context, path string) (bool, error) {
	sc, err := s.loader.Load(path)
	if err != nil {
		return false, err
	}

	res, err := s.runner.Run(ctx, sc)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.printer.result(res); err != nil {
		return false, err
	}
	return res.OK(), nil
}

// watch re-runs scripts as they change until ctx is done or the process is
// interrupted. Load and run errors are printed and do not stop watching.
func (s *runSession) watch(ctx context.Context, cmd *cobra.Command, paths []string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(paths, cfg.Watch.Debounce(), func(path string) {
		s.logger.Info("re-running script", "path", path)
		if _, err := s.run(ctx, path); err != nil {
			s.mu.Lock()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			s.mu.Unlock()
		}
	}, s.logger)
	if err != nil {
		return err
	}
	w.Start()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", strings.Join(paths, ", "))
	<-ctx.Done()
	return w.Close()
}

// resolveFormat picks the flag value over the configured default.
func resolveFormat(flag string, cfg *config.Config) (string, error) {
	format := flag
	if format == "" {
		format = cfg.Output.Format
	}
	if !slices.Contains(config.ValidOutputFormats(), format) {
		return "", fmt.Errorf("invalid output format %q: must be one of %s",
			format, strings.Join(config.ValidOutputFormats(), ", "))
	}
	return format, nil
}
