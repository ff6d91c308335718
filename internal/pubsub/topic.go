package pubsub

import "slices"

// subscription is one registered handler.
type subscription struct {
	key     string
	ref     Ref
	handler Handler
	once    bool
	firing  bool // once-handler currently running; guarded by Registry.mu
}

// call invokes the handler. A nil handler is a no-op.
func (s *subscription) call(data any) error {
	if s.handler == nil {
		return nil
	}
	return s.handler(data)
}

// topic holds the subscriptions registered under one key.
// order is ascending: refs are allocated from a monotonic counter and only
// ever appended, so insertion order and ref order coincide.
type topic struct {
	subs  map[Ref]*subscription
	order []Ref
}

func newTopic() *topic {
	return &topic{subs: make(map[Ref]*subscription)}
}

func (t *topic) add(s *subscription) {
	t.subs[s.ref] = s
	t.order = append(t.order, s.ref)
}

func (t *topic) get(ref Ref) (*subscription, bool) {
	s, ok := t.subs[ref]
	return s, ok
}

// remove deletes ref and reports whether it was present.
func (t *topic) remove(ref Ref) bool {
	if _, ok := t.subs[ref]; !ok {
		return false
	}
	delete(t.subs, ref)
	if i, found := slices.BinarySearch(t.order, ref); found {
		t.order = slices.Delete(t.order, i, i+1)
	}
	return true
}

func (t *topic) empty() bool {
	return len(t.subs) == 0
}

func (t *topic) len() int {
	return len(t.subs)
}

// snapshot returns the subscriptions in invocation order. The slice is a
// copy; later mutations of the topic do not affect it.
func (t *topic) snapshot() []*subscription {
	out := make([]*subscription, 0, len(t.order))
	for _, ref := range t.order {
		out = append(out, t.subs[ref])
	}
	return out
}
