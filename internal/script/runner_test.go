package script

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/pubsub/internal/errors"
	"github.com/Iron-Ham/pubsub/internal/logging"
)

func runScript(t *testing.T, s *Script, opts Options) *Result {
	t.Helper()
	res, err := NewRunner(opts).Run(context.Background(), s)
	require.NoError(t, err)
	return res
}

func TestRunner_Scenario(t *testing.T) {
	s := &Script{Name: "scenario", Steps: []Step{
		{Op: OpSubscribe, Key: "A", Handler: "h1", ExpectRef: u64(0)},
		{Op: OpOnce, Key: "A", Handler: "h2", ExpectRef: u64(1)},
		{Op: OpPublish, Key: "A", Data: "x"},
		{Op: OpPublish, Key: "A", Data: "y"},
		{Op: OpUnsubscribe, Key: "A", Ref: u64(0)},
		{Op: OpPublish, Key: "A", Expect: ExpectKeyNotFound},
	}}

	res := runScript(t, s, Options{})

	want := []Entry{
		{Step: 2, Key: "A", Ref: 0, Handler: "h1", Data: "x"},
		{Step: 2, Key: "A", Ref: 1, Handler: "h2", Data: "x"},
		{Step: 3, Key: "A", Ref: 0, Handler: "h1", Data: "y"},
	}
	if diff := cmp.Diff(want, res.Transcript); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, res.OK(), "outcomes: %+v", res.Outcomes)
	assert.Equal(t, uint64(2), res.NextRef)
	assert.Equal(t, 0, res.Registry.Len())
	assert.Equal(t, "key_not_found", res.Outcomes[5].Code)
}

func TestRunner_Outcomes(t *testing.T) {
	s := &Script{Name: "outcomes", Steps: []Step{
		{Op: OpSubscribe, Key: "A", Handler: "h1"},
		{Op: OpUnsubscribe, Key: "A", Ref: u64(7), Expect: ExpectRefNotFound},
		{Op: OpUnsubscribe, Key: "B", Expect: ExpectKeyNotFound},
		{Op: OpReset},
		{Op: OpSubscribe, Key: "A", Handler: "h1", ExpectRef: u64(0)},
	}}

	res := runScript(t, s, Options{})

	want := []Outcome{
		{Step: 0, Op: OpSubscribe, Key: "A", Ref: u64(0), Code: "none", Expected: ExpectNone, Met: true},
		{Step: 1, Op: OpUnsubscribe, Key: "A", Code: "ref_not_found", Expected: ExpectRefNotFound, Met: true},
		{Step: 2, Op: OpUnsubscribe, Key: "B", Code: "key_not_found", Expected: ExpectKeyNotFound, Met: true},
		{Step: 3, Op: OpReset, Code: "none", Expected: ExpectNone, Met: true},
		{Step: 4, Op: OpSubscribe, Key: "A", Ref: u64(0), Code: "none", Expected: ExpectNone, Met: true},
	}
	opts := cmpopts.IgnoreFields(Outcome{}, "Err", "Error")
	if diff := cmp.Diff(want, res.Outcomes, opts); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, errors.Is(res.Outcomes[1].Err, errors.ErrRefNotFound))
	assert.Contains(t, res.Outcomes[1].Error, "no event found for given ref")
}

func TestRunner_UnmetExpectations(t *testing.T) {
	s := &Script{Name: "unmet", Steps: []Step{
		{Op: OpSubscribe, Key: "A", Handler: "h1", ExpectRef: u64(3)},
		{Op: OpPublish, Key: "B"},
		{Op: OpPublish, Key: "A", Expect: ExpectKeyNotFound},
	}}

	res := runScript(t, s, Options{})

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, 3, res.Failed())
	assert.False(t, res.OK())
	assert.Equal(t, "got ref 0, want 3", res.Outcomes[0].Reason)
	assert.Equal(t, "got key_not_found, want none", res.Outcomes[1].Reason)
	assert.Equal(t, "got none, want key_not_found", res.Outcomes[2].Reason)
}

func TestRunner_StopOnFailure(t *testing.T) {
	s := &Script{Name: "stop", Steps: []Step{
		{Op: OpPublish, Key: "A"},
		{Op: OpSubscribe, Key: "A"},
	}}

	res := runScript(t, s, Options{StopOnFailure: true})
	assert.Len(t, res.Outcomes, 1)
	assert.Equal(t, uint64(0), res.NextRef)
}

func TestRunner_SpawnIsNotDeliveredInSamePass(t *testing.T) {
	s := &Script{Name: "spawn", Steps: []Step{
		{Op: OpSubscribe, Key: "A", Handler: "parent", Spawn: "child"},
		{Op: OpPublish, Key: "A", Data: 1},
		{Op: OpPublish, Key: "A", Data: 2},
	}}

	res := runScript(t, s, Options{})

	want := []Entry{
		{Step: 1, Key: "A", Ref: 0, Handler: "parent", Data: 1},
		{Step: 2, Key: "A", Ref: 0, Handler: "parent", Data: 2},
		{Step: 2, Key: "A", Ref: 1, Handler: "child", Data: 2},
	}
	if diff := cmp.Diff(want, res.Transcript); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, res.Registry.Count("A"))
}

func TestRunner_FailingHandler(t *testing.T) {
	s := &Script{Name: "fail", Steps: []Step{
		{Op: OpOnce, Key: "A", Handler: "bad", Fail: true},
		{Op: OpSubscribe, Key: "A", Handler: "never"},
		{Op: OpPublish, Key: "A", Expect: ExpectHandlerFailed},
	}}

	res := runScript(t, s, Options{})

	require.True(t, res.OK(), "outcomes: %+v", res.Outcomes)
	assert.Equal(t, []Entry{{Step: 2, Key: "A", Ref: 0, Handler: "bad"}}, res.Transcript)
	assert.True(t, res.Registry.Has("A", 0), "failing once handler must stay registered")
	assert.Contains(t, res.Outcomes[2].Error, "bad failed")
}

func TestRunner_InvalidScript(t *testing.T) {
	res, err := NewRunner(Options{}).Run(context.Background(), &Script{Steps: []Step{{Op: "shout"}}})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errors.ErrInvalidScript)
}

func TestRunner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(Options{}).Run(ctx, &Script{Steps: []Step{{Op: OpSubscribe, Key: "A"}}})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Outcomes)
}

func TestRunner_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, logging.LevelDebug)

	s := &Script{Name: "logged", Steps: []Step{
		{Op: OpSubscribe, Key: "A"},
		{Op: OpPublish, Key: "B"},
	}}
	res := runScript(t, s, Options{Logger: logger})
	require.Equal(t, 1, res.Failed())

	var warns, steps int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "logged", entry["script"])
		switch entry["msg"] {
		case "step executed":
			steps++
			assert.Equal(t, "DEBUG", entry["level"])
		case "expectation not met":
			warns++
			assert.Equal(t, "WARN", entry["level"])
			assert.Equal(t, "B", entry["key"])
		}
	}
	assert.Equal(t, 2, steps)
	assert.Equal(t, 1, warns)
}

func TestRunner_LoggingSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, logging.LevelDebug)

	s := &Script{Name: "severity", Steps: []Step{
		{Op: OpSubscribe, Key: "A", Handler: "bad", Fail: true},
		{Op: OpPublish, Key: "A"},
		{Op: OpPublish, Key: "B"},
		{Op: OpSubscribe, Key: "C"},
		{Op: OpUnsubscribe, Key: "C", Expect: ExpectKeyNotFound},
	}}
	res := runScript(t, s, Options{Logger: logger})
	require.Equal(t, 3, res.Failed())

	levels := make(map[float64]string)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "expectation not met" {
			levels[entry["step"].(float64)] = entry["level"].(string)
		}
	}
	assert.Equal(t, map[float64]string{1: "ERROR", 2: "WARN", 4: "WARN"}, levels)
}

func TestResult_JSON(t *testing.T) {
	s := &Script{Name: "json", Steps: []Step{
		{Op: OpSubscribe, Key: "A", Handler: "h1"},
		{Op: OpPublish, Key: "A", Data: map[string]any{"x": 1}},
	}}
	res := runScript(t, s, Options{})

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "json", decoded["script"])
	assert.NotContains(t, decoded, "Registry")
	assert.Len(t, decoded["transcript"], 1)
	assert.Len(t, decoded["outcomes"], 2)
}
