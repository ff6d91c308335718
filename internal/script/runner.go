package script

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Iron-Ham/pubsub/internal/errors"
	"github.com/Iron-Ham/pubsub/internal/logging"
	"github.com/Iron-Ham/pubsub/internal/pubsub"
)

// Entry records one handler invocation.
type Entry struct {
	Step    int    `json:"step"`
	Key     string `json:"key"`
	Ref     uint64 `json:"ref"`
	Handler string `json:"handler"`
	Data    any    `json:"data,omitempty"`
}

// Outcome records what one step did and whether it met its expectation.
type Outcome struct {
	Step     int     `json:"step"`
	Op       Op      `json:"op"`
	Key      string  `json:"key,omitempty"`
	Ref      *uint64 `json:"ref,omitempty"`
	Code     string  `json:"code"`
	Error    string  `json:"error,omitempty"`
	Expected Expect  `json:"expected"`
	Met      bool    `json:"met"`
	Reason   string  `json:"reason,omitempty"`

	Err error `json:"-"`
}

// Result is the record of one script run.
type Result struct {
	Script     string    `json:"script"`
	Path       string    `json:"path,omitempty"`
	Transcript []Entry   `json:"transcript"`
	Outcomes   []Outcome `json:"outcomes"`
	NextRef    uint64    `json:"next_ref"`

	// Registry is the registry the script ran against, in its final state.
	Registry *pubsub.Registry `json:"-"`
}

// Failed returns the number of steps whose expectation was not met.
func (r *Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Met {
			n++
		}
	}
	return n
}

// OK reports whether every step met its expectation.
func (r *Result) OK() bool {
	return r.Failed() == 0
}

// Options configures a Runner.
type Options struct {
	// StopOnFailure ends the run at the first unmet expectation.
	StopOnFailure bool
	// Logger receives step records. Nil discards them.
	Logger *logging.Logger
}

// Runner executes scripts against fresh registries.
type Runner struct {
	stopOnFailure bool
	logger        *logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		stopOnFailure: opts.StopOnFailure,
		logger:        logger,
	}
}

// run is the state of one script execution. It is confined to the goroutine
// calling Run; handlers run synchronously inside Publish.
type run struct {
	reg        *pubsub.Registry
	step       int
	transcript []Entry
}

// Run validates s and executes its steps in order on a new registry.
//
// Unmet expectations are reported in the Result. An error is returned only
// when s is invalid or ctx is done; in the latter case the partial Result is
// returned alongside ctx.Err().
func (r *Runner) Run(ctx context.Context, s *Script) (*Result, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	logger := r.logger.WithScript(s.Name)
	state := &run{reg: pubsub.New()}
	result := &Result{
		Script:   s.Name,
		Path:     s.Path,
		Registry: state.reg,
	}

	logger.Debug("script started", "steps", len(s.Steps))

	var runErr error
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		state.step = i
		outcome := state.exec(i, step)
		result.Outcomes = append(result.Outcomes, outcome)

		stepLog := logger.With("step", i, "op", string(step.Op))
		if step.Key != "" {
			stepLog = stepLog.WithKey(step.Key)
		}
		stepLog.Debug("step executed", "code", outcome.Code)

		if !outcome.Met {
			// An unexpected success carries no error, so WARN is the floor.
			level := max(logging.LevelFor(outcome.Err), slog.LevelWarn)
			stepLog.Log(level, "expectation not met",
				"expected", string(outcome.Expected),
				"code", outcome.Code,
				"reason", outcome.Reason)
			if r.stopOnFailure {
				break
			}
		}
	}

	result.Transcript = state.transcript
	result.NextRef = uint64(state.reg.NextRef())

	logger.Debug("script finished",
		"outcomes", len(result.Outcomes),
		"invocations", len(result.Transcript),
		"failed", result.Failed())

	return result, runErr
}

func (st *run) exec(i int, step Step) Outcome {
	out := Outcome{
		Step:     i,
		Op:       step.Op,
		Key:      step.Key,
		Expected: step.Expected(),
	}

	var err error
	switch step.Op {
	case OpSubscribe, OpOnce:
		ref := uint64(st.subscribe(step.Key, step.Label(), step.Op == OpOnce, step.Fail, step.Spawn))
		out.Ref = &ref
		if step.ExpectRef != nil && *step.ExpectRef != ref {
			out.Reason = fmt.Sprintf("got ref %d, want %d", ref, *step.ExpectRef)
		}
	case OpUnsubscribe:
		if step.Ref == nil {
			err = st.reg.UnsubscribeAll(step.Key)
		} else {
			err = st.reg.Unsubscribe(step.Key, pubsub.Ref(*step.Ref))
		}
	case OpPublish:
		err = st.reg.Publish(step.Key, step.Data)
	case OpReset:
		st.reg.Reset()
	}

	out.Err = err
	out.Code = errors.Code(err)
	if err != nil {
		out.Error = err.Error()
	}
	if out.Code != string(out.Expected) && out.Reason == "" {
		out.Reason = fmt.Sprintf("got %s, want %s", out.Code, out.Expected)
	}
	out.Met = out.Reason == ""
	return out
}

// subscribe registers a recording handler labelled label under key.
func (st *run) subscribe(key, label string, once, fail bool, spawn string) pubsub.Ref {
	var ref pubsub.Ref
	handler := func(data any) error {
		st.transcript = append(st.transcript, Entry{
			Step:    st.step,
			Key:     key,
			Ref:     uint64(ref),
			Handler: label,
			Data:    data,
		})
		if spawn != "" {
			st.subscribe(key, spawn, false, false, "")
		}
		if fail {
			return fmt.Errorf("%s failed", label)
		}
		return nil
	}

	if once {
		ref = st.reg.SubscribeOnce(key, handler)
	} else {
		ref = st.reg.Subscribe(key, handler)
	}
	return ref
}
