package script

// Op names a registry operation performed by a step.
type Op string

// Supported step operations.
const (
	OpSubscribe   Op = "subscribe"
	OpOnce        Op = "once"
	OpUnsubscribe Op = "unsubscribe"
	OpPublish     Op = "publish"
	OpReset       Op = "reset"
)

// Expect is the outcome a step is expected to produce. The values match
// errors.Code.
type Expect string

// Supported expectations.
const (
	ExpectNone          Expect = "none"
	ExpectKeyNotFound   Expect = "key_not_found"
	ExpectRefNotFound   Expect = "ref_not_found"
	ExpectHandlerFailed Expect = "handler_failed"
)

// Script is a named, ordered list of steps run against a fresh registry.
type Script struct {
	Name  string `yaml:"name" toml:"name"`
	Steps []Step `yaml:"steps" toml:"steps"`

	// Path is the file the script was loaded from, if any.
	Path string `yaml:"-" toml:"-"`
}

// Step is one registry operation.
type Step struct {
	Op  Op     `yaml:"op" toml:"op"`
	Key string `yaml:"key,omitempty" toml:"key,omitempty"`

	// Handler labels the handler registered by subscribe and once steps.
	Handler string `yaml:"handler,omitempty" toml:"handler,omitempty"`
	// Fail makes the handler return an error every time it runs.
	Fail bool `yaml:"fail,omitempty" toml:"fail,omitempty"`
	// Spawn makes the handler subscribe another handler with this label to
	// the same key each time it runs.
	Spawn string `yaml:"spawn,omitempty" toml:"spawn,omitempty"`
	// ExpectRef asserts the ref returned by subscribe and once steps.
	ExpectRef *uint64 `yaml:"expect_ref,omitempty" toml:"expect_ref,omitempty"`

	// Ref selects the subscription removed by unsubscribe. Nil removes the
	// whole key.
	Ref *uint64 `yaml:"ref,omitempty" toml:"ref,omitempty"`

	// Data is passed to handlers by publish.
	Data any `yaml:"data,omitempty" toml:"data,omitempty"`

	// Expect is the outcome code. Empty means none.
	Expect Expect `yaml:"expect,omitempty" toml:"expect,omitempty"`
}

// Expected returns the step's expectation with the empty value mapped to
// ExpectNone.
func (s Step) Expected() Expect {
	if s.Expect == "" {
		return ExpectNone
	}
	return s.Expect
}

// Label returns the handler label, defaulting to the op name.
func (s Step) Label() string {
	if s.Handler == "" {
		return string(s.Op)
	}
	return s.Handler
}
