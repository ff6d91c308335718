package pubsub

import (
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/Iron-Ham/pubsub/internal/errors"
)

func nop(any) error { return nil }

func TestRegistry_New(t *testing.T) {
	reg := New()

	if reg.NextRef() != 0 {
		t.Errorf("NextRef() = %d, want 0", reg.NextRef())
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
	if keys := reg.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}
}

func TestRegistry_Subscribe(t *testing.T) {
	reg := New()

	ref1 := reg.Subscribe("EVENT", nop)
	ref2 := reg.Subscribe("EVENT", nop)

	want := []Subscription{
		{Key: "EVENT", Ref: ref1, Once: false},
		{Key: "EVENT", Ref: ref2, Once: false},
	}
	if got := reg.Subscriptions("EVENT"); !reflect.DeepEqual(got, want) {
		t.Errorf("Subscriptions() = %+v, want %+v", got, want)
	}
}

func TestRegistry_SubscribeOnce(t *testing.T) {
	reg := New()

	ref1 := reg.SubscribeOnce("EVENT", nop)
	ref2 := reg.SubscribeOnce("EVENT", nop)

	want := []Subscription{
		{Key: "EVENT", Ref: ref1, Once: true},
		{Key: "EVENT", Ref: ref2, Once: true},
	}
	if got := reg.Subscriptions("EVENT"); !reflect.DeepEqual(got, want) {
		t.Errorf("Subscriptions() = %+v, want %+v", got, want)
	}
}

func TestRegistry_RefsAreGlobalAndSequential(t *testing.T) {
	reg := New()

	keys := []string{"a", "b", "a", "c", "b", "a"}
	for i, key := range keys {
		var ref Ref
		if i%2 == 0 {
			ref = reg.Subscribe(key, nop)
		} else {
			ref = reg.SubscribeOnce(key, nop)
		}
		if ref != Ref(i) {
			t.Fatalf("call %d on %q returned ref %d, want %d", i, key, ref, i)
		}
	}

	// Removing subscriptions never rewinds the counter.
	if err := reg.UnsubscribeAll("a"); err != nil {
		t.Fatalf("UnsubscribeAll(a) error = %v", err)
	}
	if ref := reg.Subscribe("a", nop); ref != 6 {
		t.Errorf("ref after removal = %d, want 6", ref)
	}
}

func TestRegistry_PublishInvokesOnceWithData(t *testing.T) {
	reg := New()

	var calls int
	var got any
	reg.Subscribe("k", func(data any) error {
		calls++
		got = data
		return nil
	})

	data := map[string]int{"a": 1}
	if err := reg.Publish("k", data); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if !reflect.DeepEqual(got, data) {
		t.Errorf("handler got %v, want %v", got, data)
	}
}

func TestRegistry_PublishWithoutData(t *testing.T) {
	reg := New()

	got := any("sentinel")
	reg.Subscribe("k", func(data any) error {
		got = data
		return nil
	})

	if err := reg.Publish("k", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got != nil {
		t.Errorf("handler got %v, want nil", got)
	}
}

func TestRegistry_PublishOrder(t *testing.T) {
	reg := New()

	var order []string
	for _, name := range []string{"h1", "h2", "h3"} {
		reg.Subscribe("EVENT", func(any) error {
			order = append(order, name)
			return nil
		})
	}

	if err := reg.Publish("EVENT", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	want := []string{"h1", "h2", "h3"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if reg.Count("EVENT") != 3 {
		t.Errorf("persistent handlers should remain, Count() = %d", reg.Count("EVENT"))
	}
}

func TestRegistry_PublishOrderAfterInterleavedRemoval(t *testing.T) {
	reg := New()

	var order []Ref
	record := func(ref *Ref) Handler {
		return func(any) error {
			order = append(order, *ref)
			return nil
		}
	}

	refs := make([]Ref, 5)
	for i := range refs {
		refs[i] = reg.Subscribe("k", record(&refs[i]))
		reg.Subscribe("other", nop)
	}
	if err := reg.Unsubscribe("k", refs[1]); err != nil {
		t.Fatal(err)
	}
	if err := reg.Unsubscribe("k", refs[3]); err != nil {
		t.Fatal(err)
	}

	if err := reg.Publish("k", nil); err != nil {
		t.Fatal(err)
	}
	want := []Ref{refs[0], refs[2], refs[4]}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRegistry_PublishUnknownKey(t *testing.T) {
	reg := New()

	err := reg.Publish("missing", nil)
	if !errors.Is(err, errors.ErrKeyNotFound) {
		t.Fatalf("Publish() error = %v, want ErrKeyNotFound", err)
	}

	var keyErr *errors.KeyNotFoundError
	if !errors.As(err, &keyErr) || keyErr.Key != "missing" {
		t.Errorf("expected KeyNotFoundError for %q, got %v", "missing", err)
	}
}

func TestRegistry_UnsubscribeAll(t *testing.T) {
	reg := New()

	called := false
	reg.Subscribe("EVENT", func(any) error { called = true; return nil })
	reg.Subscribe("EVENT", func(any) error { called = true; return nil })
	reg.Subscribe("other", nop)

	if err := reg.UnsubscribeAll("EVENT"); err != nil {
		t.Fatalf("UnsubscribeAll() error = %v", err)
	}
	if keys := reg.Keys(); !reflect.DeepEqual(keys, []string{"other"}) {
		t.Errorf("Keys() = %v, want [other]", keys)
	}
	if err := reg.Publish("EVENT", nil); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Errorf("Publish() after UnsubscribeAll error = %v, want ErrKeyNotFound", err)
	}
	if called {
		t.Error("handler should not be called after UnsubscribeAll")
	}
}

func TestRegistry_UnsubscribeAllUnknownKey(t *testing.T) {
	reg := New()

	if err := reg.UnsubscribeAll("invalidKey"); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Errorf("UnsubscribeAll() error = %v, want ErrKeyNotFound", err)
	}
}

func TestRegistry_UnsubscribeRef(t *testing.T) {
	reg := New()

	ref1 := reg.Subscribe("EVENT", nop)
	ref2 := reg.Subscribe("EVENT", nop)

	if err := reg.Unsubscribe("EVENT", ref1); err != nil {
		t.Fatalf("Unsubscribe(ref1) error = %v", err)
	}
	want := []Subscription{{Key: "EVENT", Ref: ref2}}
	if got := reg.Subscriptions("EVENT"); !reflect.DeepEqual(got, want) {
		t.Errorf("Subscriptions() = %+v, want %+v", got, want)
	}

	if err := reg.Unsubscribe("EVENT", ref2); err != nil {
		t.Fatalf("Unsubscribe(ref2) error = %v", err)
	}
	if reg.Len() != 0 || len(reg.Keys()) != 0 {
		t.Errorf("registry should be empty, Keys() = %v", reg.Keys())
	}
	if err := reg.Publish("EVENT", nil); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Errorf("Publish() error = %v, want ErrKeyNotFound", err)
	}
}

func TestRegistry_UnsubscribeErrors(t *testing.T) {
	reg := New()
	ref := reg.Subscribe("EVENT", nop)
	reg.Subscribe("other", nop)

	tests := []struct {
		name string
		key  string
		ref  Ref
		want error
	}{
		{"unknown key", "invalidKey", ref, errors.ErrKeyNotFound},
		{"unknown ref", "EVENT", 123, errors.ErrRefNotFound},
		{"ref under another key", "other", ref, errors.ErrRefNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := reg.Snapshot()
			next := reg.NextRef()

			err := reg.Unsubscribe(tt.key, tt.ref)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Unsubscribe() error = %v, want %v", err, tt.want)
			}
			if after := reg.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Errorf("failed Unsubscribe mutated the registry: %+v -> %+v", before, after)
			}
			if reg.NextRef() != next {
				t.Errorf("NextRef() changed from %d to %d", next, reg.NextRef())
			}
		})
	}
}

func TestRegistry_RefNotFoundCarriesContext(t *testing.T) {
	reg := New()
	reg.Subscribe("EVENT", nop)

	err := reg.Unsubscribe("EVENT", 42)
	var refErr *errors.RefNotFoundError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected RefNotFoundError, got %v", err)
	}
	if refErr.Key != "EVENT" || refErr.Ref != 42 {
		t.Errorf("RefNotFoundError = %+v, want key EVENT ref 42", refErr)
	}
}

func TestRegistry_OnceHandlers(t *testing.T) {
	reg := New()

	calls := make([]int, 3)
	for i := range calls {
		reg.SubscribeOnce("EVENT", func(any) error {
			calls[i]++
			return nil
		})
	}

	if err := reg.Publish("EVENT", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !reflect.DeepEqual(calls, []int{1, 1, 1}) {
		t.Errorf("calls = %v, want [1 1 1]", calls)
	}
	if reg.Len() != 0 || len(reg.Keys()) != 0 {
		t.Errorf("once handlers should be gone, Snapshot() = %+v", reg.Snapshot())
	}
	if err := reg.Publish("EVENT", nil); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Errorf("second Publish() error = %v, want ErrKeyNotFound", err)
	}
}

func TestRegistry_OnceMixedWithPersistent(t *testing.T) {
	reg := New()

	var order []string
	reg.SubscribeOnce("k", func(any) error { order = append(order, "once"); return nil })
	persistent := reg.Subscribe("k", func(any) error { order = append(order, "always"); return nil })

	for i := 0; i < 2; i++ {
		if err := reg.Publish("k", nil); err != nil {
			t.Fatalf("Publish() #%d error = %v", i, err)
		}
	}

	want := []string{"once", "always", "always"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if got := reg.Subscriptions("k"); !reflect.DeepEqual(got, []Subscription{{Key: "k", Ref: persistent}}) {
		t.Errorf("Subscriptions() = %+v", got)
	}
}

func TestRegistry_OnceHandlerUnsubscribingItself(t *testing.T) {
	reg := New()

	var ref Ref
	ref = reg.SubscribeOnce("k", func(any) error {
		return reg.Unsubscribe("k", ref)
	})
	reg.Subscribe("k", nop)

	if err := reg.Publish("k", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if reg.Has("k", ref) {
		t.Error("once subscription should be gone")
	}
	if reg.Count("k") != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count("k"))
	}
}

func TestRegistry_PublishSnapshotIgnoresNewSubscriptions(t *testing.T) {
	reg := New()

	var order []string
	reg.Subscribe("k", func(any) error {
		order = append(order, "first")
		reg.Subscribe("k", func(any) error {
			order = append(order, "spawned")
			return nil
		})
		return nil
	})

	if err := reg.Publish("k", nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"first"}) {
		t.Errorf("first publish order = %v, want [first]", order)
	}
	if reg.Count("k") != 2 {
		t.Errorf("Count() = %d, want 2", reg.Count("k"))
	}

	order = nil
	if err := reg.Publish("k", nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"first", "spawned"}) {
		t.Errorf("second publish order = %v, want [first spawned]", order)
	}
}

func TestRegistry_PublishSkipsSubscriptionsRemovedMidDelivery(t *testing.T) {
	reg := New()

	var order []string
	var second Ref
	reg.Subscribe("k", func(any) error {
		order = append(order, "first")
		return reg.Unsubscribe("k", second)
	})
	second = reg.Subscribe("k", func(any) error {
		order = append(order, "second")
		return nil
	})
	reg.Subscribe("k", func(any) error {
		order = append(order, "third")
		return nil
	})

	if err := reg.Publish("k", nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"first", "third"}) {
		t.Errorf("order = %v, want [first third]", order)
	}
}

func TestRegistry_ResetDuringPublishStopsStaleDelivery(t *testing.T) {
	reg := New()

	var order []string
	reg.Subscribe("k", func(any) error {
		order = append(order, "resetter")
		reg.Reset()
		// Ref 1 is handed out again, to a subscription the pass never saw.
		reg.Subscribe("k", func(any) error { order = append(order, "new0"); return nil })
		reg.Subscribe("k", func(any) error { order = append(order, "new1"); return nil })
		return nil
	})
	reg.Subscribe("k", func(any) error {
		order = append(order, "stale")
		return nil
	})

	if err := reg.Publish("k", nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"resetter"}) {
		t.Errorf("order = %v, want [resetter]", order)
	}
}

func TestRegistry_HandlerErrorStopsDelivery(t *testing.T) {
	reg := New()

	var order []string
	reg.Subscribe("k", func(any) error { order = append(order, "h1"); return nil })
	failing := reg.SubscribeOnce("k", func(any) error {
		order = append(order, "h2")
		return io.ErrUnexpectedEOF
	})
	reg.Subscribe("k", func(any) error { order = append(order, "h3"); return nil })

	err := reg.Publish("k", nil)
	if !errors.Is(err, errors.ErrHandlerFailed) {
		t.Fatalf("Publish() error = %v, want ErrHandlerFailed", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Publish() error should wrap the handler's error, got %v", err)
	}

	var hErr *errors.HandlerError
	if !errors.As(err, &hErr) || hErr.Ref != uint64(failing) || hErr.Key != "k" {
		t.Errorf("HandlerError = %+v, want key k ref %d", hErr, failing)
	}
	if !reflect.DeepEqual(order, []string{"h1", "h2"}) {
		t.Errorf("order = %v, want [h1 h2]", order)
	}
	if !reg.Has("k", failing) {
		t.Error("a once-subscription whose handler failed should stay registered")
	}
}

func TestRegistry_HandlerPanicPropagates(t *testing.T) {
	reg := New()

	later := false
	reg.Subscribe("k", func(any) error { panic("boom") })
	reg.Subscribe("k", func(any) error { later = true; return nil })

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("recover() = %v, want boom", r)
			}
		}()
		_ = reg.Publish("k", nil)
	}()

	if later {
		t.Error("handlers after a panicking handler should not run")
	}
	// The registry lock must have been released.
	if ref := reg.Subscribe("k", nop); ref != 2 {
		t.Errorf("Subscribe() after panic = %d, want 2", ref)
	}
}

func TestRegistry_NilHandler(t *testing.T) {
	reg := New()

	ref := reg.SubscribeOnce("k", nil)
	if err := reg.Publish("k", "x"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if reg.Has("k", ref) {
		t.Error("nil once handler should still be retired")
	}
}

func TestRegistry_ReentrantPublish(t *testing.T) {
	reg := New()

	var got []any
	reg.Subscribe("inner", func(data any) error {
		got = append(got, data)
		return nil
	})
	reg.Subscribe("outer", func(data any) error {
		return reg.Publish("inner", fmt.Sprintf("via %v", data))
	})

	if err := reg.Publish("outer", "outer"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{"via outer"}) {
		t.Errorf("got = %v", got)
	}
}

func TestRegistry_ReentrantPublishSkipsRunningOnce(t *testing.T) {
	reg := New()

	calls := 0
	var inner error
	reg.SubscribeOnce("k", func(any) error {
		calls++
		inner = reg.Publish("k", "again")
		return nil
	})

	if err := reg.Publish("k", "first"); err != nil {
		t.Fatal(err)
	}
	if inner != nil {
		t.Errorf("re-entrant Publish() = %v, want nil", inner)
	}
	if calls != 1 {
		t.Errorf("once handler ran %d times, want 1", calls)
	}
	if reg.Has("k", 0) {
		t.Error("once subscription still registered")
	}
	if err := reg.Publish("k", nil); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Errorf("Publish() after once = %v, want ErrKeyNotFound", err)
	}
}

func TestRegistry_Reset(t *testing.T) {
	reg := New()
	reg.Subscribe("a", nop)
	reg.SubscribeOnce("b", nop)

	reg.Reset()

	if reg.NextRef() != 0 {
		t.Errorf("NextRef() = %d, want 0", reg.NextRef())
	}
	if len(reg.Keys()) != 0 {
		t.Errorf("Keys() = %v, want empty", reg.Keys())
	}
	if err := reg.Publish("a", nil); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Errorf("Publish() after Reset error = %v, want ErrKeyNotFound", err)
	}
	if ref := reg.Subscribe("a", nop); ref != 0 {
		t.Errorf("first ref after Reset = %d, want 0", ref)
	}
}

func TestRegistry_Inspection(t *testing.T) {
	reg := New()
	reg.Subscribe("b", nop)
	reg.SubscribeOnce("a", nop)
	reg.Subscribe("b", nop)

	if got := reg.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}
	if reg.Count("b") != 2 || reg.Count("a") != 1 || reg.Count("zzz") != 0 {
		t.Errorf("Count() = a:%d b:%d zzz:%d", reg.Count("a"), reg.Count("b"), reg.Count("zzz"))
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
	if !reg.Has("b", 2) || reg.Has("a", 2) || reg.Has("zzz", 0) {
		t.Error("Has() returned unexpected results")
	}
	if reg.Subscriptions("zzz") != nil {
		t.Error("Subscriptions() of unknown key should be nil")
	}

	want := []Subscription{
		{Key: "a", Ref: 1, Once: true},
		{Key: "b", Ref: 0},
		{Key: "b", Ref: 2},
	}
	if got := reg.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

// TestRegistry_Scenario walks through the reference scenario end to end.
func TestRegistry_Scenario(t *testing.T) {
	reg := New()

	type call struct {
		name string
		data any
	}
	var calls []call
	handler := func(name string) Handler {
		return func(data any) error {
			calls = append(calls, call{name, data})
			return nil
		}
	}

	ref0 := reg.Subscribe("A", handler("h1"))
	ref1 := reg.Subscribe("A", handler("h2"))
	if ref0 != 0 || ref1 != 1 {
		t.Fatalf("refs = %d, %d, want 0, 1", ref0, ref1)
	}

	data := map[string]int{"x": 1}
	if err := reg.Publish("A", data); err != nil {
		t.Fatal(err)
	}
	want := []call{{"h1", data}, {"h2", data}}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}

	calls = nil
	if err := reg.Unsubscribe("A", ref0); err != nil {
		t.Fatal(err)
	}
	if err := reg.Publish("A", nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(calls, []call{{"h2", nil}}) {
		t.Fatalf("calls = %v, want only h2", calls)
	}

	if err := reg.Unsubscribe("A", ref1); err != nil {
		t.Fatal(err)
	}
	if err := reg.Publish("A", nil); !errors.Is(err, errors.ErrKeyNotFound) {
		t.Fatalf("Publish() error = %v, want ErrKeyNotFound", err)
	}
}
