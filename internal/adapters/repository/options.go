package repository

import "github.com/okian/attune/internal/domain/model"

// Option applies a configuration option to the FeatureStore.
type Option func(*FeatureStore)

// WithTracks seeds the store with tracks.
func WithTracks(tracks ...model.Track) Option {
	return func(s *FeatureStore) {
		s.seed = append(s.seed, tracks...)
	}
}
