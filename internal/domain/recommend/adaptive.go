package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/similarity"
	"github.com/okian/attune/pkg/metrics"
)

// Adaptive reacts to a single reaction. Positive reactions get the five
// tracks most similar to the rated one, negative reactions the five least
// similar, and neutral ones a diversity set across genres and decades.
// It fails with model.ErrRecommendationUnavailable when the rated track is
// not in the catalog.
func (e *Engine) Adaptive(ctx context.Context, sessionID string, r model.Reaction) ([]model.Recommendation, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRecommendationLatency(ModeAdaptive, float64(time.Since(start).Microseconds())/1000)
	}()

	switch r.Polarity() {
	case model.PolarityPositive, model.PolarityNegative:
		rated, err := e.catalog.Track(ctx, r.TrackID)
		if err != nil {
			return nil, fmt.Errorf("%w: track %s has no features", model.ErrRecommendationUnavailable, r.TrackID)
		}
		return e.bySimilarity(ctx, rated, r.Polarity() == model.PolarityPositive), nil
	default:
		sess, err := e.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		recs := e.diverse(ctx, &sess)
		if len(recs) == 0 {
			return nil, fmt.Errorf("%w: no unplayed tracks", model.ErrRecommendationUnavailable)
		}
		return recs, nil
	}
}

// bySimilarity ranks the catalog against rated with the track-to-track score.
// Contrasting tracks are scored 1 - similarity so the least similar rank first.
func (e *Engine) bySimilarity(ctx context.Context, rated model.Track, similar bool) []model.Recommendation {
	reason := model.ReasonSimilar
	if !similar {
		reason = model.ReasonContrasting
	}
	scores := make(map[string]float64)
	for _, t := range e.catalog.Tracks(ctx) {
		if t.ID == rated.ID {
			continue
		}
		s := similarity.TrackToTrack(rated, t)
		if !similar {
			s = 1 - s
		}
		scores[t.ID] = s
	}
	return ranked(scores, reason, adaptiveSize)
}

type groupKey struct {
	genre  string
	decade int
}

// diverse groups unplayed tracks by genre and decade, visits the groups in
// random order and draws one random track per group, round after round,
// until five are chosen.
func (e *Engine) diverse(ctx context.Context, sess *model.Session) []model.Recommendation {
	tracks := e.catalog.Tracks(ctx)
	groups := make(map[groupKey][]model.Track)
	var keys []groupKey
	for _, t := range tracks {
		if sess.Played(t.ID) {
			continue
		}
		k := groupKey{genre: t.Features.Genre, decade: t.Features.Decade()}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], t)
	}
	e.rngMu.Lock()
	e.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	e.rngMu.Unlock()

	out := make([]model.Recommendation, 0, adaptiveSize)
	for len(out) < adaptiveSize && len(keys) > 0 {
		remaining := keys[:0]
		for _, k := range keys {
			if len(out) == adaptiveSize {
				break
			}
			members := groups[k]
			i := e.intn(len(members))
			out = append(out, model.Recommendation{
				TrackID: members[i].ID,
				Score:   1,
				Reasons: []model.Reason{model.ReasonDiverse},
			})
			members = append(members[:i], members[i+1:]...)
			groups[k] = members
			if len(members) > 0 {
				remaining = append(remaining, k)
			}
		}
		keys = remaining
	}
	return out
}
