package recommend

import (
	"context"
	"math"
	"time"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/similarity"
)

const (
	collaborativeMinRating = 4
	contentMinScore        = 3

	genreBoost  = 0.6
	energyBoost = 0.6
	maxBoost    = 2.0

	// Contextual weights.
	timeOfDayWeight = 0.4
	durationWeight  = 0.3
	moodWeight      = 0.3

	// A session drifts towards calmer tracks over its first hour.
	durationRamp     = time.Hour
	startValence     = 0.7
	valenceDriftSpan = 0.2
	neutralReaction  = 3.0
)

// Collaborative proposes tracks rated 4 or more by the profiles most similar
// to vector, skipping tracks vector already rates. A track's score is the
// highest peer rating times peer similarity.
func (e *Engine) Collaborative(ctx context.Context, vector map[string]float64, exclude []string) []model.Recommendation {
	if len(vector) == 0 {
		return nil
	}
	best := make(map[string]float64)
	for _, peer := range e.prefs.Peers(ctx, vector, exclude, e.peerCount) {
		for trackID, rating := range e.prefs.Vector(ctx, peer.ProfileID) {
			if rating < collaborativeMinRating {
				continue
			}
			if _, rated := vector[trackID]; rated {
				continue
			}
			if _, err := e.catalog.Track(ctx, trackID); err != nil {
				continue
			}
			if s := rating * peer.Similarity; s > best[trackID] {
				best[trackID] = s
			}
		}
	}
	return ranked(best, model.ReasonCollaborative, perStrategy)
}

// ContentBased scores every catalog track by its content similarity to the
// preference profile built from vector, boosted by the session context.
func (e *Engine) ContentBased(ctx context.Context, vector map[string]float64, sc SessionContext) []model.Recommendation {
	profile, ok := e.preferenceFeatures(ctx, vector)
	if !ok {
		return nil
	}
	scores := make(map[string]float64)
	for _, t := range e.catalog.Tracks(ctx) {
		base := similarity.ClampedContent(profile, t.Features)
		if base <= 0 {
			continue
		}
		scores[t.ID] = base * contextBoost(t.Features, sc)
	}
	return ranked(scores, model.ReasonContent, perStrategy)
}

// preferenceFeatures averages the features of tracks scored 3 or more,
// weighting each by its score. The genre is the one with the largest total
// weight.
func (e *Engine) preferenceFeatures(ctx context.Context, vector map[string]float64) (model.Features, bool) {
	var (
		total                       float64
		era, energy, valence, tempo float64
		acoustic, dance             float64
		genres                      = make(map[string]float64)
	)
	for trackID, score := range vector {
		if score < contentMinScore {
			continue
		}
		t, err := e.catalog.Track(ctx, trackID)
		if err != nil {
			continue
		}
		f := t.Features
		total += score
		era += float64(f.Era) * score
		energy += f.Energy * score
		valence += f.Valence * score
		tempo += f.Tempo * score
		acoustic += f.Acousticness * score
		dance += f.Danceability * score
		genres[f.Genre] += score
	}
	if total == 0 {
		return model.Features{}, false
	}

	var genre string
	var genreWeight float64
	for g, w := range genres {
		if w > genreWeight || (w == genreWeight && g < genre) {
			genre, genreWeight = g, w
		}
	}
	return model.Features{
		Genre:        genre,
		Era:          int(math.Round(era / total)),
		Energy:       energy / total,
		Valence:      valence / total,
		Tempo:        tempo / total,
		Acousticness: acoustic / total,
		Danceability: dance / total,
	}, true
}

// contextBoost is the multiplier a track earns for matching the session's
// preferred genres and target energy band, capped at 2.
func contextBoost(f model.Features, sc SessionContext) float64 {
	boost := 1.0
	if _, ok := sc.PreferredGenres[f.Genre]; ok {
		boost += genreBoost
	}
	if sc.Band.Contains(f.Energy) {
		boost += energyBoost
	}
	return math.Min(boost, maxBoost)
}

// Contextual scores unplayed tracks against the time of day, how long the
// session has run and how the session has been reacting.
func (e *Engine) Contextual(ctx context.Context, sc SessionContext) []model.Recommendation {
	drift := math.Min(float64(sc.Elapsed)/float64(durationRamp), 1)
	durationValence := startValence - drift*valenceDriftSpan

	avg := sc.AverageReaction
	if avg == 0 {
		avg = neutralReaction
	}
	moodValence := (avg - model.MinScore) / (model.MaxScore - model.MinScore)
	mid := sc.Band.Mid()

	scores := make(map[string]float64)
	for _, t := range e.catalog.Tracks(ctx) {
		if _, played := sc.Played[t.ID]; played {
			continue
		}
		f := t.Features
		scores[t.ID] = timeOfDayWeight*(1-math.Abs(f.Energy-mid)) +
			durationWeight*(1-math.Abs(f.Valence-durationValence)) +
			moodWeight*(1-math.Abs(f.Valence-moodValence))
	}
	return ranked(scores, model.ReasonContextual, perStrategy)
}

// ranked turns a score map into the top n recommendations.
func ranked(scores map[string]float64, reason model.Reason, n int) []model.Recommendation {
	if len(scores) == 0 {
		return nil
	}
	out := make([]model.Recommendation, 0, len(scores))
	for id, s := range scores {
		out = append(out, model.Recommendation{TrackID: id, Score: s, Reasons: []model.Reason{reason}})
	}
	return top(out, n)
}
