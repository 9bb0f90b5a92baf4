package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/scoring"
)

type trackCounts struct {
	plays, likes, dislikes int
}

// TrackStatsStore counts plays and polar reactions per track across sessions.
type TrackStatsStore struct {
	mu     sync.RWMutex
	counts map[string]*trackCounts
}

// NewTrackStatsStore returns an empty store.
func NewTrackStatsStore() *TrackStatsStore {
	return &TrackStatsStore{counts: make(map[string]*trackCounts)}
}

func (s *TrackStatsStore) entry(trackID string) *trackCounts {
	c, ok := s.counts[trackID]
	if !ok {
		c = &trackCounts{}
		s.counts[trackID] = c
	}
	return c
}

// RecordPlay counts a play of trackID.
func (s *TrackStatsStore) RecordPlay(_ context.Context, trackID string) {
	s.mu.Lock()
	s.entry(trackID).plays++
	s.mu.Unlock()
}

// RecordReaction counts positive reactions as likes and negative ones as dislikes.
func (s *TrackStatsStore) RecordReaction(_ context.Context, trackID string, p model.Polarity) {
	if p == model.PolarityNeutral {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.entry(trackID)
	if p == model.PolarityPositive {
		c.likes++
	} else {
		c.dislikes++
	}
}

// Stats returns the statistics of trackID. Unknown tracks report zeros.
func (s *TrackStatsStore) Stats(_ context.Context, trackID string) model.TrackStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := model.TrackStats{TrackID: trackID}
	if c, ok := s.counts[trackID]; ok {
		st.Plays, st.Likes, st.Dislikes = c.plays, c.likes, c.dislikes
	}
	return scoring.Stats(st)
}

// Top returns up to n tracks ordered by popularity desc, then id asc.
func (s *TrackStatsStore) Top(ctx context.Context, n int) []model.TrackStats {
	s.mu.RLock()
	ids := make([]string, 0, len(s.counts))
	for id := range s.counts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]model.TrackStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Stats(ctx, id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Popularity != out[j].Popularity {
			return out[i].Popularity > out[j].Popularity
		}
		return out[i].TrackID < out[j].TrackID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
