package reactionlog

import (
	"time"

	"github.com/okian/attune/pkg/logger"
)

// Option configures a BadgerLog.
type Option func(*BadgerLog)

// WithInMemory keeps the log in memory; the directory is ignored.
func WithInMemory() Option {
	return func(l *BadgerLog) { l.inMemory = true }
}

// WithSyncWrites fsyncs every append.
func WithSyncWrites(sync bool) Option {
	return func(l *BadgerLog) { l.syncWrites = sync }
}

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n uint32) Option {
	return func(l *BadgerLog) {
		if n > 0 {
			l.failureThreshold = n
		}
	}
}

// WithBreakerTimeout sets how long the breaker stays open before probing.
func WithBreakerTimeout(d time.Duration) Option {
	return func(l *BadgerLog) {
		if d > 0 {
			l.breakerTimeout = d
		}
	}
}

// WithLogger overrides the log's logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *BadgerLog) {
		if lg != nil {
			l.log = lg
		}
	}
}
