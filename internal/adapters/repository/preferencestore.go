package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/similarity"
)

// PreferenceStore maps profile id -> track id -> score (1..5). Writes are
// exclusive; scores are never decayed.
type PreferenceStore struct {
	mu       sync.RWMutex
	profiles map[string]map[string]float64
}

// NewPreferenceStore returns an empty store.
func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{profiles: make(map[string]map[string]float64)}
}

// Set records profile's score for track. Scores outside 1..5 are rejected.
func (s *PreferenceStore) Set(_ context.Context, profileID, trackID string, score int) error {
	if score < model.MinScore || score > model.MaxScore {
		return fmt.Errorf("%w: %d", ErrInvalidScore, score)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.profiles[profileID]
	if !ok {
		v = make(map[string]float64)
		s.profiles[profileID] = v
	}
	v[trackID] = float64(score)
	return nil
}

// Vector returns a copy of profile's preference vector.
func (s *PreferenceStore) Vector(_ context.Context, profileID string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyVector(s.profiles[profileID])
}

// Blend averages the vectors of several profiles. Tracks rated by only some
// profiles keep the average over those that rated them.
func (s *PreferenceStore) Blend(_ context.Context, profileIDs []string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, id := range profileIDs {
		for track, score := range s.profiles[id] {
			sums[track] += score
			counts[track]++
		}
	}
	for track := range sums {
		sums[track] /= float64(counts[track])
	}
	return sums
}

// Peers returns up to n profiles most similar to vector by cosine similarity,
// excluding the given profiles and those with no positive similarity.
func (s *PreferenceStore) Peers(_ context.Context, vector map[string]float64, exclude []string, n int) []model.Peer {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	s.mu.RLock()
	peers := make([]model.Peer, 0, len(s.profiles))
	for id, v := range s.profiles {
		if _, ok := skip[id]; ok {
			continue
		}
		if sim := similarity.Cosine(vector, v); sim > 0 {
			peers = append(peers, model.Peer{ProfileID: id, Similarity: sim})
		}
	}
	s.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].Similarity != peers[j].Similarity {
			return peers[i].Similarity > peers[j].Similarity
		}
		return peers[i].ProfileID < peers[j].ProfileID
	})
	if n > 0 && len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// Count returns the number of profiles with at least one score.
func (s *PreferenceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func copyVector(v map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}
