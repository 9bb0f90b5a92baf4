package debounce

// Option applies a configuration option to a Debouncer.
type Option[K comparable, V any] func(*Debouncer[K, V])

// WithMaxPending bounds the number of keys waiting to fire. When the bound is
// reached, a submit for a new key fires immediately instead of waiting.
// If maxPending <= 0 the debouncer is unbounded.
func WithMaxPending[K comparable, V any](maxPending int) Option[K, V] {
	return func(d *Debouncer[K, V]) {
		d.maxPending = maxPending
	}
}

// WithOnSuperseded registers a hook called when a pending value is replaced
// or cancelled without firing.
func WithOnSuperseded[K comparable, V any](fn func(key K)) Option[K, V] {
	return func(d *Debouncer[K, V]) {
		d.onSuperseded = fn
	}
}

// WithGroup assigns each submitted value to a group. Keys of one group fire
// in the order of their latest Submit.
func WithGroup[K comparable, V any](fn func(key K, v V) string) Option[K, V] {
	return func(d *Debouncer[K, V]) {
		d.groupOf = fn
	}
}
