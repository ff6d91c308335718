package pubsub

import (
	"sort"
	"sync"

	"github.com/Iron-Ham/pubsub/internal/errors"
)

// Ref identifies one subscription. Refs are unique across the whole
// registry, allocated from 0 upward, and never reused until Reset.
type Ref uint64

// Handler is invoked by Publish with the published data (nil when none was
// given). A non-nil error stops delivery to the remaining handlers of that
// publish call and is returned to the publisher.
type Handler func(data any) error

// Subscription is a read-only view of one registered handler.
type Subscription struct {
	Key  string
	Ref  Ref
	Once bool
}

// Registry maps keys to ordered sets of subscriptions.
// It is safe for concurrent use. The lock is never held while a handler
// runs, so handlers may call back into the registry.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*topic
	next   Ref
}

// New creates an empty registry whose first ref is 0.
func New() *Registry {
	return &Registry{
		topics: make(map[string]*topic),
	}
}

// Subscribe registers handler under key and returns its ref.
func (r *Registry) Subscribe(key string, handler Handler) Ref {
	return r.add(key, handler, false)
}

// SubscribeOnce registers handler under key and returns its ref. The
// subscription is removed after the handler's first successful invocation.
func (r *Registry) SubscribeOnce(key string, handler Handler) Ref {
	return r.add(key, handler, true)
}

func (r *Registry) add(key string, handler Handler, once bool) Ref {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := r.allocateRef()
	t, ok := r.topics[key]
	if !ok {
		t = newTopic()
		r.topics[key] = t
	}
	t.add(&subscription{
		key:     key,
		ref:     ref,
		handler: handler,
		once:    once,
	})
	return ref
}

// Unsubscribe removes the subscription ref from key. It returns a
// KeyNotFoundError if key has no subscriptions and a RefNotFoundError if ref
// is not registered under key; in both cases the registry is unchanged.
// Removing the last subscription of a key removes the key.
func (r *Registry) Unsubscribe(key string, ref Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.requireKeyAndRef(key, ref)
	if err != nil {
		return err
	}
	r.removeLocked(key, t, ref)
	return nil
}

// UnsubscribeAll removes key and every subscription under it. It returns a
// KeyNotFoundError if key has no subscriptions.
func (r *Registry) UnsubscribeAll(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireKey(key); err != nil {
		return err
	}
	delete(r.topics, key)
	return nil
}

// Publish invokes every handler registered under key, in ref order, passing
// data. It returns a KeyNotFoundError if key has no subscriptions.
//
// The set of handlers is fixed when Publish starts: handlers subscribed
// during delivery are not invoked in this pass, and handlers removed by an
// earlier handler in this pass are skipped. Once-subscriptions are removed
// right after their handler returns successfully.
//
// A handler error stops delivery immediately and is returned wrapped in a
// HandlerError. Panics are not recovered.
//
// A once-handler that is already running (in a concurrent or re-entrant
// publish) is not delivered to again. If it is the only subscription under
// key, such a publish returns nil without invoking anything.
func (r *Registry) Publish(key string, data any) error {
	r.mu.Lock()
	t, err := r.requireKey(key)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	subs := t.snapshot()
	r.mu.Unlock()

	for _, sub := range subs {
		if !r.claim(sub) {
			continue
		}
		if err := r.deliver(sub, data); err != nil {
			return errors.NewHandlerError(key, uint64(sub.ref), err)
		}
	}
	return nil
}

// deliver invokes sub and retires it when it is a once-subscription. A
// failing or panicking once-handler is released and stays registered.
func (r *Registry) deliver(sub *subscription, data any) error {
	ok := false
	defer func() {
		if !ok {
			r.release(sub)
		}
	}()

	if err := sub.call(data); err != nil {
		return err
	}
	ok = true
	if sub.once {
		r.retire(sub)
	}
	return nil
}

// Reset removes every key and subscription and restarts refs at 0.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.topics = make(map[string]*topic)
	r.next = 0
}

// NextRef returns the ref the next Subscribe or SubscribeOnce will return.
func (r *Registry) NextRef() Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Keys returns every key with at least one subscription, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.topics))
	for key := range r.topics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of subscriptions under key.
func (r *Registry) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.topics[key]; ok {
		return t.len()
	}
	return 0
}

// Len returns the total number of subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.topics {
		n += t.len()
	}
	return n
}

// Has reports whether ref is registered under key.
func (r *Registry) Has(key string, ref Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.topics[key]; ok {
		_, found := t.get(ref)
		return found
	}
	return false
}

// Subscriptions returns the subscriptions under key in invocation order.
func (r *Registry) Subscriptions(key string) []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[key]
	if !ok {
		return nil
	}
	return views(t.snapshot())
}

// Snapshot returns every subscription, ordered by key and then by ref.
func (r *Registry) Snapshot() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.topics))
	for key := range r.topics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Subscription
	for _, key := range keys {
		out = append(out, views(r.topics[key].snapshot())...)
	}
	return out
}

func views(subs []*subscription) []Subscription {
	out := make([]Subscription, len(subs))
	for i, s := range subs {
		out[i] = Subscription{Key: s.key, Ref: s.ref, Once: s.once}
	}
	return out
}

// allocateRef returns the current counter value and increments it.
// The caller must hold r.mu.
func (r *Registry) allocateRef() Ref {
	ref := r.next
	r.next++
	return ref
}

// requireKey fails with KeyNotFoundError unless key has a subscription.
// The caller must hold r.mu.
func (r *Registry) requireKey(key string) (*topic, error) {
	t, ok := r.topics[key]
	if !ok || t.empty() {
		return nil, errors.NewKeyNotFoundError(key)
	}
	return t, nil
}

// requireKeyAndRef fails with KeyNotFoundError unless key exists, then with
// RefNotFoundError unless ref is registered under it.
// The caller must hold r.mu.
func (r *Registry) requireKeyAndRef(key string, ref Ref) (*topic, error) {
	t, err := r.requireKey(key)
	if err != nil {
		return nil, err
	}
	if _, ok := t.get(ref); !ok {
		return nil, errors.NewRefNotFoundError(key, uint64(ref))
	}
	return t, nil
}

// removeLocked removes ref from t and prunes the key once t is empty.
// The caller must hold r.mu.
func (r *Registry) removeLocked(key string, t *topic, ref Ref) {
	t.remove(ref)
	if t.empty() {
		delete(r.topics, key)
	}
}

// claim reports whether sub should be invoked now. It is false once the
// subscription was removed, or after a Reset handed its ref to a different
// subscription. A once-subscription is also marked in flight.
func (r *Registry) claim(sub *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.liveLocked(sub) == nil {
		return false
	}
	if sub.once {
		if sub.firing {
			return false
		}
		sub.firing = true
	}
	return true
}

func (r *Registry) release(sub *subscription) {
	if !sub.once {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.firing = false
}

// liveLocked returns the topic holding sub, or nil when sub is no longer
// registered. The caller must hold r.mu.
func (r *Registry) liveLocked(sub *subscription) *topic {
	t, ok := r.topics[sub.key]
	if !ok {
		return nil
	}
	if cur, ok := t.get(sub.ref); !ok || cur != sub {
		return nil
	}
	return t
}

// retire removes a once-subscription after delivery. A handler that already
// removed its own subscription leaves nothing to do.
func (r *Registry) retire(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := r.liveLocked(sub); t != nil {
		r.removeLocked(sub.key, t, sub.ref)
	}
}
