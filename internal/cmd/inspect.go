package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/pubsub/internal/config"
	"github.com/Iron-Ham/pubsub/internal/pubsub"
	"github.com/Iron-Ham/pubsub/internal/script"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <script>",
	Short: "Show the registry left behind by a script",
	Long: `Run a script and print the final state of its registry: every key,
the refs registered under it in invocation order, which of them are
once-subscriptions, and the ref the next subscribe would return.

--match filters the listing by key. Patterns use '.' as a separator, so
'user.*' matches 'user.created' but not 'user.created.v2'; use 'user.**'
for any depth.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectMatch  string
	inspectFormat string
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectMatch, "match", "m", "", "Only list keys matching this glob")
	inspectCmd.Flags().StringVarP(&inspectFormat, "output", "o", "", "Output format: text or json (default from output.format)")
}

// keyState is the JSON shape of one key in the inspect listing.
type keyState struct {
	Key           string              `json:"key"`
	Subscriptions []subscriptionState `json:"subscriptions"`
}

type subscriptionState struct {
	Ref  uint64 `json:"ref"`
	Once bool   `json:"once,omitempty"`
}

type registryState struct {
	Script  string     `json:"script"`
	NextRef uint64     `json:"next_ref"`
	Failed  int        `json:"failed"`
	Keys    []keyState `json:"keys"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	format, err := resolveFormat(inspectFormat, cfg)
	if err != nil {
		return err
	}

	var matcher glob.Glob
	if inspectMatch != "" {
		matcher, err = glob.Compile(inspectMatch, '.')
		if err != nil {
			return fmt.Errorf("invalid --match pattern %q: %w", inspectMatch, err)
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	sc, err := script.NewLoader(scriptFs).Load(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := script.NewRunner(script.Options{
		StopOnFailure: cfg.Script.StopOnFailure,
		Logger:        logger,
	}).Run(ctx, sc)
	if err != nil {
		return err
	}

	state := collectState(res, matcher)

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	p := newPalette(out, colorEnabled(out, cfg.Output.Color))
	fmt.Fprintf(out, "%s %s\n", p.header.Render(state.Script), p.dim.Render(fmt.Sprintf("next ref %d", state.NextRef)))
	if state.Failed > 0 {
		fmt.Fprintln(out, p.warn.Render(fmt.Sprintf("%d steps did not meet their expectation", state.Failed)))
	}
	if len(state.Keys) == 0 {
		fmt.Fprintln(out, p.dim.Render("no subscriptions"))
		return nil
	}
	for _, k := range state.Keys {
		fmt.Fprintln(out, p.key.Render(k.Key))
		for _, s := range k.Subscriptions {
			line := fmt.Sprintf("  ref %d", s.Ref)
			if s.Once {
				line += " " + p.info.Render("once")
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

// collectState groups the registry snapshot by key, keeping only keys
// accepted by matcher (all keys when nil).
func collectState(res *script.Result, matcher glob.Glob) registryState {
	state := registryState{
		Script:  res.Script,
		NextRef: res.NextRef,
		Failed:  res.Failed(),
		Keys:    []keyState{},
	}

	var current *keyState
	for _, sub := range res.Registry.Snapshot() {
		if matcher != nil && !matcher.Match(sub.Key) {
			continue
		}
		if current == nil || current.Key != sub.Key {
			state.Keys = append(state.Keys, keyState{Key: sub.Key})
			current = &state.Keys[len(state.Keys)-1]
		}
		current.Subscriptions = append(current.Subscriptions, subscriptionView(sub))
	}
	return state
}

func subscriptionView(sub pubsub.Subscription) subscriptionState {
	return subscriptionState{Ref: uint64(sub.Ref), Once: sub.Once}
}
