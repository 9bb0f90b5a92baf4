// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers .env, an optional YAML file and ATTUNE_ environment variables.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"runtime"
)

// Strategy names used as keys in StrategyWeights.
const (
	StrategyCollaborative = "collaborative"
	StrategyContent       = "content"
	StrategyContextual    = "contextual"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile enables rotated file output in addition to stdout.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds each reaction shard queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of reaction shards, one worker each.
	WorkerCount int `koanf:"worker_count"`

	// ReactionDebounceMS is the per-connection reaction debounce window.
	ReactionDebounceMS int `koanf:"reaction_debounce_ms"`

	// RecommendDebounceMS is the per-session recommendation refresh window.
	RecommendDebounceMS int `koanf:"recommend_debounce_ms"`

	// MetricsBroadcastMS is the per-subscriber metrics push interval.
	MetricsBroadcastMS int `koanf:"metrics_broadcast_ms"`

	// MaxRecommendations caps the merged recommendation list.
	MaxRecommendations int `koanf:"max_recommendations"`

	// PeerCount is the number of similar profiles used by collaborative filtering.
	PeerCount int `koanf:"peer_count"`

	// StrategyWeights maps strategy names to merge weights.
	StrategyWeights map[string]float64 `koanf:"strategy_weights"`

	// CatalogDB is a sqlite file holding track features. Empty uses a synthetic catalog.
	CatalogDB string `koanf:"catalog_db"`

	// CatalogSize is the number of synthetic tracks generated when CatalogDB is empty.
	CatalogSize int `koanf:"catalog_size"`

	// ReactionLogDir is the badger directory for the durable reaction log. Empty disables it.
	ReactionLogDir string `koanf:"reaction_log_dir"`

	// JWTSecret verifies websocket identity tokens. Empty accepts profile_id as given.
	JWTSecret string `koanf:"jwt_secret"`

	// RateLimitPerMinute bounds API requests per client IP.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           4096,
		WorkerCount:         runtime.NumCPU() * 2,
		ReactionDebounceMS:  300,
		RecommendDebounceMS: 500,
		MetricsBroadcastMS:  10_000,
		MaxRecommendations:  10,
		PeerCount:           5,
		StrategyWeights: map[string]float64{
			StrategyCollaborative: 0.4,
			StrategyContent:       0.4,
			StrategyContextual:    0.2,
		},
		CatalogSize:        500,
		RateLimitPerMinute: 600,
	}
}
