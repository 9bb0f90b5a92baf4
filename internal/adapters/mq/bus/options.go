package bus

import "github.com/ThreeDotsLabs/watermill"

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithSubscriberBuffer sets how many events a subscriber may fall behind
// before events are dropped for it.
func WithSubscriberBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.subscriberBuffer = n
		}
	}
}

// WithWatermillLogger overrides the logger handed to watermill.
func WithWatermillLogger(l watermill.LoggerAdapter) Option {
	return func(b *Bus) {
		if l != nil {
			b.wmLogger = l
		}
	}
}
