package ws

import (
	"time"

	"github.com/okian/attune/pkg/logger"
)

// Option configures the Handler.
type Option func(*Handler)

// WithSecret verifies identity tokens with an HS256 secret.
func WithSecret(secret string) Option {
	return func(h *Handler) {
		h.auth = NewAuthenticator(secret)
	}
}

// WithMetricsInterval sets how often session metrics are pushed to each
// connection. Zero disables the push.
func WithMetricsInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.metricsInterval = d
		}
	}
}

// WithPingInterval sets the keepalive ping period. The read deadline is
// twice this.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithSendBuffer sets the per-connection outbound buffer.
func WithSendBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithLogger overrides the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}
