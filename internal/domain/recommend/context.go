package recommend

import (
	"context"
	"time"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/scoring"
)

// EnergyBand is an inclusive energy range.
type EnergyBand struct {
	Min float64
	Max float64
}

// Contains reports whether energy lies in the band.
func (b EnergyBand) Contains(energy float64) bool {
	return energy >= b.Min && energy <= b.Max
}

// Mid is the centre of the band.
func (b EnergyBand) Mid() float64 {
	return (b.Min + b.Max) / 2
}

// BandFor returns the target energy band for the hour of day.
func BandFor(t time.Time) EnergyBand {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return EnergyBand{Min: 0.4, Max: 0.7}
	case h >= 12 && h < 18:
		return EnergyBand{Min: 0.5, Max: 0.8}
	case h >= 18 && h < 22:
		return EnergyBand{Min: 0.3, Max: 0.6}
	default:
		return EnergyBand{Min: 0.1, Max: 0.4}
	}
}

// SessionContext is the session state the content and contextual strategies
// score against.
type SessionContext struct {
	Now time.Time
	// Elapsed is how long the session has been running.
	Elapsed time.Duration
	// AverageReaction is the mean score of the session's reactions, 0 if none.
	AverageReaction float64
	// PreferredGenres are genres of tracks the session reacted positively to.
	PreferredGenres map[string]struct{}
	Band            EnergyBand
	Played          map[string]struct{}
}

func (e *Engine) sessionContext(ctx context.Context, sess *model.Session) SessionContext {
	now := e.now()
	sc := SessionContext{
		Now:             now,
		Elapsed:         now.Sub(sess.CreatedAt),
		Band:            BandFor(now),
		PreferredGenres: make(map[string]struct{}),
		Played:          make(map[string]struct{}, len(sess.PlayedTracks)),
	}
	if sc.Elapsed < 0 {
		sc.Elapsed = 0
	}
	for _, id := range sess.PlayedTracks {
		sc.Played[id] = struct{}{}
	}

	scores := make([]float64, 0, len(sess.Reactions))
	for _, r := range sess.Reactions {
		scores = append(scores, float64(r.Score()))
		if r.Polarity() != model.PolarityPositive {
			continue
		}
		if t, err := e.catalog.Track(ctx, r.TrackID); err == nil && t.Features.Genre != "" {
			sc.PreferredGenres[t.Features.Genre] = struct{}{}
		}
	}
	sc.AverageReaction = scoring.Mean(scores)
	return sc
}
