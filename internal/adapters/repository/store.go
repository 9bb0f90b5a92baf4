// Package repository holds the engine's shared reference and preference state:
// the track feature catalog, per-profile preference vectors and cross-session
// track statistics.
package repository

import (
	"context"

	"github.com/okian/attune/internal/domain/model"
)

// Catalog provides read access to track features.
type Catalog interface {
	// Track returns a track by id or model.ErrTrackNotFound.
	Track(ctx context.Context, id string) (model.Track, error)
	// Tracks returns every track ordered by id.
	Tracks(ctx context.Context) []model.Track
	// Len returns the number of tracks.
	Len() int
}

// CatalogSource loads tracks from durable storage.
type CatalogSource interface {
	LoadTracks(ctx context.Context) ([]model.Track, error)
}
