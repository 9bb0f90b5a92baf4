package service

import (
	"time"

	"github.com/okian/attune/internal/adapters/repository"
	"github.com/okian/attune/internal/config"
	"github.com/okian/attune/internal/domain/pipeline"
	"github.com/okian/attune/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of reaction shards, each with one worker.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of each shard queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithReactionDebounce sets the per-connection reaction debounce window.
// Zero disables debouncing.
func WithReactionDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.reactionDebounce = d
		}
	}
}

// WithRecommendDebounce sets the per-session recommendation refresh window.
func WithRecommendDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.recommendDebounce = d
		}
	}
}

// WithMaxRecommendations caps merged recommendation lists.
func WithMaxRecommendations(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRecommendations = n
		}
	}
}

// WithPeerCount sets how many similar profiles collaborative filtering uses.
func WithPeerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.peerCount = n
		}
	}
}

// WithStrategyWeights sets merge weights keyed by strategy name. Missing
// strategies keep their default weight.
func WithStrategyWeights(weights map[string]float64) Option {
	return func(s *Service) {
		if w, ok := weights[config.StrategyCollaborative]; ok {
			s.weights.Collaborative = w
		}
		if w, ok := weights[config.StrategyContent]; ok {
			s.weights.Content = w
		}
		if w, ok := weights[config.StrategyContextual]; ok {
			s.weights.Contextual = w
		}
	}
}

// WithCatalogSource loads the catalog from durable storage on Start.
func WithCatalogSource(src repository.CatalogSource) Option {
	return func(s *Service) {
		s.catalogSource = src
	}
}

// WithCatalogSize sets the synthetic catalog size used without a source.
func WithCatalogSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.catalogSize = n
		}
	}
}

// WithReactionLog durably records accepted reactions.
func WithReactionLog(sink pipeline.Sink) Option {
	return func(s *Service) {
		s.reactionLog = sink
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// FromConfig translates process configuration into service options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithReactionDebounce(time.Duration(cfg.ReactionDebounceMS) * time.Millisecond),
		WithRecommendDebounce(time.Duration(cfg.RecommendDebounceMS) * time.Millisecond),
		WithMaxRecommendations(cfg.MaxRecommendations),
		WithPeerCount(cfg.PeerCount),
		WithStrategyWeights(cfg.StrategyWeights),
		WithCatalogSize(cfg.CatalogSize),
	}
}
