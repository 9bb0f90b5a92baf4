// Package similarity scores how alike two tracks are.
//
// Two variants exist. Content is the weighted feature match used to score
// catalog tracks against a preference vector; it is not normalized and can go
// negative for distant eras or tempos, so callers clamp. TrackToTrack is the
// distance-based score used for adaptive "more like this" lookups and is
// always in (0,1].
package similarity

import (
	"math"

	"github.com/okian/attune/internal/domain/model"
)

// Content weights.
const (
	genreWeight   = 0.3
	eraWeight     = 0.2
	energyWeight  = 0.2
	valenceWeight = 0.2
	tempoWeight   = 0.1

	eraSpan   = 50.0
	tempoSpan = 100.0
)

// Track-to-track boosts.
const (
	sameGenreBoost  = 1.2
	sameArtistBoost = 1.3
	nearEraBoost    = 1.1
	nearEraYears    = 10
)

// Content returns 0.3*[same genre] + 0.2*(1-|Δera|/50) + 0.2*(1-|Δenergy|)
// + 0.2*(1-|Δvalence|) + 0.1*(1-|Δtempo|/100).
func Content(a, b model.Features) float64 {
	var score float64
	if a.Genre != "" && a.Genre == b.Genre {
		score += genreWeight
	}
	score += eraWeight * (1 - math.Abs(float64(a.Era-b.Era))/eraSpan)
	score += energyWeight * (1 - math.Abs(a.Energy-b.Energy))
	score += valenceWeight * (1 - math.Abs(a.Valence-b.Valence))
	score += tempoWeight * (1 - math.Abs(a.Tempo-b.Tempo)/tempoSpan)
	return score
}

// ClampedContent is Content bounded to [0,1].
func ClampedContent(a, b model.Features) float64 {
	return math.Max(0, math.Min(1, Content(a, b)))
}

// Distance is the Euclidean distance over energy, valence, tempo/100 and era/50.
func Distance(a, b model.Features) float64 {
	de := a.Energy - b.Energy
	dv := a.Valence - b.Valence
	dt := (a.Tempo - b.Tempo) / tempoSpan
	dy := float64(a.Era-b.Era) / eraSpan
	return math.Sqrt(de*de + dv*dv + dt*dt + dy*dy)
}

// TrackToTrack returns 1/(1+distance) boosted by matching genre, artist and
// era within ten years, capped at 1.
func TrackToTrack(a, b model.Track) float64 {
	score := 1 / (1 + Distance(a.Features, b.Features))
	if a.Features.Genre != "" && a.Features.Genre == b.Features.Genre {
		score *= sameGenreBoost
	}
	if a.Artist != "" && a.Artist == b.Artist {
		score *= sameArtistBoost
	}
	if abs(a.Features.Era-b.Features.Era) <= nearEraYears {
		score *= nearEraBoost
	}
	return math.Min(1, score)
}

// Cosine returns the cosine similarity of two sparse vectors over their shared
// keys. Vectors with no overlap or zero norm score 0.
func Cosine(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot, na, nb float64
	shared := 0
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
			na += va * va
			nb += vb * vb
			shared++
		}
	}
	if shared == 0 || na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
