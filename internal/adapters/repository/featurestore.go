package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/okian/attune/internal/domain/model"
)

// catalogSnapshot is an immutable view of the catalog. Readers load it
// without locks; writers build a new one and swap the pointer.
type catalogSnapshot struct {
	byID   map[string]model.Track
	sorted []model.Track
}

func newSnapshot(byID map[string]model.Track) *catalogSnapshot {
	sorted := make([]model.Track, 0, len(byID))
	for _, t := range byID {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &catalogSnapshot{byID: byID, sorted: sorted}
}

// FeatureStore is the read-mostly track catalog.
type FeatureStore struct {
	writeMu  sync.Mutex
	snapshot atomic.Pointer[catalogSnapshot]
	seed     []model.Track
}

// NewFeatureStore constructs a feature store with configuration options.
func NewFeatureStore(opts ...Option) *FeatureStore {
	s := &FeatureStore{}
	for _, opt := range opts {
		opt(s)
	}
	byID := make(map[string]model.Track, len(s.seed))
	for _, t := range s.seed {
		byID[t.ID] = t
	}
	s.seed = nil
	s.snapshot.Store(newSnapshot(byID))
	return s
}

// Track returns a track by id.
func (s *FeatureStore) Track(_ context.Context, id string) (model.Track, error) {
	t, ok := s.snapshot.Load().byID[id]
	if !ok {
		return model.Track{}, fmt.Errorf("%w: %s", model.ErrTrackNotFound, id)
	}
	return t, nil
}

// Tracks returns every track ordered by id. The slice is shared; do not modify.
func (s *FeatureStore) Tracks(_ context.Context) []model.Track {
	return s.snapshot.Load().sorted
}

// Len returns the number of tracks.
func (s *FeatureStore) Len() int {
	return len(s.snapshot.Load().sorted)
}

// Put adds or replaces tracks.
func (s *FeatureStore) Put(_ context.Context, tracks ...model.Track) error {
	for _, t := range tracks {
		if t.ID == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidTrack)
		}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	cur := s.snapshot.Load().byID
	next := make(map[string]model.Track, len(cur)+len(tracks))
	for k, v := range cur {
		next[k] = v
	}
	for _, t := range tracks {
		next[t.ID] = t
	}
	s.snapshot.Store(newSnapshot(next))
	return nil
}

// Load replaces the catalog with the tracks from src.
func (s *FeatureStore) Load(ctx context.Context, src CatalogSource) (int, error) {
	tracks, err := src.LoadTracks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	byID := make(map[string]model.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}
	s.writeMu.Lock()
	s.snapshot.Store(newSnapshot(byID))
	s.writeMu.Unlock()
	return len(byID), nil
}

var (
	syntheticGenres  = []string{"ambient", "classical", "jazz", "folk", "pop", "rock", "soul", "electronic"}
	syntheticArtists = []string{"Aster Vale", "Blue Meridian", "Cora Lind", "Deep Harbor", "Ember Quartet", "Fjord Lights", "Gentle Static", "Hollow Pines"}
)

// SyntheticTrack derives reproducible features from the track id, so the same
// id always describes the same track.
func SyntheticTrack(id string) model.Track {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	// #nosec G404 -- reproducible catalog data, not security-sensitive
	rng := rand.New(rand.NewSource(int64(hasher.Sum32())))

	between := func(lo, hi float64) float64 {
		return lo + rng.Float64()*(hi-lo)
	}

	return model.Track{
		ID:     id,
		Title:  fmt.Sprintf("Track %s", id),
		Artist: syntheticArtists[rng.Intn(len(syntheticArtists))],
		Features: model.Features{
			Genre:        syntheticGenres[rng.Intn(len(syntheticGenres))],
			Era:          1950 + rng.Intn(75),
			Energy:       between(0.05, 0.95),
			Valence:      between(0.05, 0.95),
			Tempo:        between(60, 180),
			Acousticness: between(0.05, 0.95),
			Danceability: between(0.05, 0.95),
		},
	}
}

// SyntheticCatalog returns n synthetic tracks with ids trk-0001...
func SyntheticCatalog(n int) []model.Track {
	tracks := make([]model.Track, 0, n)
	for i := 1; i <= n; i++ {
		tracks = append(tracks, SyntheticTrack(fmt.Sprintf("trk-%04d", i)))
	}
	return tracks
}
