// Package pubsub provides an in-process publish/subscribe registry.
//
// Callers register handlers under string keys, publish data to every handler
// of a key, and remove handlers individually or per key. Delivery is
// synchronous: Publish returns after every handler has run.
//
// # Main Types
//
//   - [Registry]: the key -> ref -> subscription mapping plus the ref counter
//   - [Handler]: func(data any) error, invoked on publish
//   - [Ref]: unique handle returned by Subscribe, used by Unsubscribe
//   - [Subscription]: read-only view used for inspection
//
// # Refs
//
// Refs come from a single counter shared by all keys. The nth call to
// Subscribe or SubscribeOnce (counting from 0) returns ref n. Refs are never
// reused until [Registry.Reset].
//
// # Keys
//
// A key exists only while it has at least one subscription. Removing the
// last subscription of a key, explicitly or through a once-handler firing,
// removes the key, and publishing to it fails with a KeyNotFoundError.
//
// # Delivery
//
// Publish snapshots the subscriptions of the key before calling anything.
// Handlers run in registration order. Subscriptions added by a handler wait
// for the next publish; subscriptions removed by an earlier handler in the
// same pass are skipped. A handler error stops delivery and is returned as a
// HandlerError; there is no per-handler isolation.
//
// # Thread Safety
//
// [Registry] is safe for concurrent use. Handlers are called without the
// registry lock held and may subscribe, unsubscribe or publish themselves.
//
// # Basic Usage
//
//	reg := pubsub.New()
//
//	ref := reg.Subscribe("user.created", func(data any) error {
//	    fmt.Println("created:", data)
//	    return nil
//	})
//
//	reg.SubscribeOnce("user.created", func(data any) error {
//	    fmt.Println("first user only")
//	    return nil
//	})
//
//	if err := reg.Publish("user.created", "alice"); err != nil {
//	    return err
//	}
//
//	_ = reg.Unsubscribe("user.created", ref)
//
//	// Nothing left under the key.
//	err := reg.Publish("user.created", nil)
//	errors.Is(err, errors.ErrKeyNotFound) // true
//
// The package-level functions operate on a process-wide registry returned
// by [Default].
package pubsub
