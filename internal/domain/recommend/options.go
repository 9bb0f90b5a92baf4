package recommend

import (
	"math/rand"
	"time"

	"github.com/okian/attune/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithWeights sets the merge weight of each strategy.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithLimit caps the merged list.
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithPeerCount sets how many similar profiles collaborative filtering uses.
func WithPeerCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.peerCount = n
		}
	}
}

// WithClock overrides the time source used for contextual scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand sets the random source used to pick diversity tracks.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
