package pipeline

import (
	"time"

	"github.com/okian/attune/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink sets the durable reaction log.
func WithSink(s Sink) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithTrigger sets what is notified after each accepted reaction.
func WithTrigger(t Trigger) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.trigger = t
		}
	}
}

// WithAdvancer enables auto-advance using the given recommender.
func WithAdvancer(r Recommender, c Catalog) Option {
	return func(p *Pipeline) {
		p.recommender = r
		p.catalog = c
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger overrides the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshWindow sets the per-session coalescing window.
func WithRefreshWindow(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.window = d }
}

// WithRefresherClock overrides the time source for published events.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}
