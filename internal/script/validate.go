package script

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/pubsub/internal/errors"
)

// ValidationErrors collects every problem found in a script.
type ValidationErrors []*errors.ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// allowedExpect lists the outcomes each op can produce.
var allowedExpect = map[Op][]Expect{
	OpSubscribe:   {ExpectNone},
	OpOnce:        {ExpectNone},
	OpUnsubscribe: {ExpectNone, ExpectKeyNotFound, ExpectRefNotFound},
	OpPublish:     {ExpectNone, ExpectKeyNotFound, ExpectHandlerFailed},
	OpReset:       {ExpectNone},
}

// Validate checks s and returns every problem found, or nil.
func Validate(s *Script) error {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, errors.NewValidationError(msg).WithField(field).WithValue(value))
	}

	if len(s.Steps) == 0 {
		add("steps", nil, "script has no steps")
	}

	for i, step := range s.Steps {
		field := func(name string) string { return fmt.Sprintf("steps[%d].%s", i, name) }

		allowed, known := allowedExpect[step.Op]
		if !known {
			add(field("op"), step.Op, "unknown op")
			continue
		}

		if step.Op != OpReset && step.Key == "" {
			add(field("key"), nil, "key is required")
		}
		if !slices.Contains(allowed, step.Expected()) {
			add(field("expect"), step.Expect, fmt.Sprintf("%s cannot produce this outcome", step.Op))
		}

		subscribing := step.Op == OpSubscribe || step.Op == OpOnce
		if !subscribing {
			if step.Handler != "" {
				add(field("handler"), step.Handler, "only subscribe and once take a handler")
			}
			if step.Fail {
				add(field("fail"), step.Fail, "only subscribe and once take fail")
			}
			if step.Spawn != "" {
				add(field("spawn"), step.Spawn, "only subscribe and once take spawn")
			}
			if step.ExpectRef != nil {
				add(field("expect_ref"), *step.ExpectRef, "only subscribe and once return a ref")
			}
		}
		if step.Ref != nil && step.Op != OpUnsubscribe {
			add(field("ref"), *step.Ref, "only unsubscribe takes a ref")
		}
		if step.Data != nil && step.Op != OpPublish {
			add(field("data"), step.Data, "only publish takes data")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
