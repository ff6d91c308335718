package pubsub

var std = New()

// Default returns the process-wide registry used by the package-level
// functions.
func Default() *Registry {
	return std
}

// Subscribe registers handler under key on the default registry.
func Subscribe(key string, handler Handler) Ref {
	return std.Subscribe(key, handler)
}

// SubscribeOnce registers a one-shot handler under key on the default registry.
func SubscribeOnce(key string, handler Handler) Ref {
	return std.SubscribeOnce(key, handler)
}

// Unsubscribe removes ref from key on the default registry.
func Unsubscribe(key string, ref Ref) error {
	return std.Unsubscribe(key, ref)
}

// UnsubscribeAll removes key from the default registry.
func UnsubscribeAll(key string) error {
	return std.UnsubscribeAll(key)
}

// Publish delivers data to the handlers under key on the default registry.
func Publish(key string, data any) error {
	return std.Publish(key, data)
}

// Reset clears the default registry and restarts its refs at 0.
func Reset() {
	std.Reset()
}
