// Package scoring computes engagement and track statistics from reactions.
package scoring

import (
	"math"
	"time"

	"github.com/okian/attune/internal/domain/model"
)

// Engagement configuration constants.
const (
	// DecayWindow is the exponential decay constant applied to reaction age.
	DecayWindow = 300 * time.Second

	// defaultIntensity is used for reactions without an explicit intensity.
	defaultIntensity = 3

	likeRating    = 5
	dislikeRating = 1
)

// Engagement returns the decayed mean intensity of reactions at now: each
// intensity is scaled by exp(-age/DecayWindow) and the sum is divided by the
// number of reactions, so stale reactions pull engagement toward zero.
// Reactions without an intensity count as 3. No reactions yields 0.
func Engagement(reactions []model.Reaction, now time.Time) float64 {
	if len(reactions) == 0 {
		return 0
	}
	var weighted float64
	for _, r := range reactions {
		age := now.Sub(r.Timestamp)
		if age < 0 {
			age = 0
		}
		w := math.Exp(-float64(age) / float64(DecayWindow))
		intensity := r.Intensity
		if intensity == 0 {
			intensity = defaultIntensity
		}
		weighted += float64(intensity) * w
	}
	return clamp(weighted/float64(len(reactions)), 0, model.MaxScore)
}

// Mean returns the arithmetic mean of values, 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Ratio returns part/total, 0 when total is 0.
func Ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// Popularity is (likes - dislikes) / plays, 0 for unplayed tracks.
func Popularity(likes, dislikes, plays int) float64 {
	if plays == 0 {
		return 0
	}
	return float64(likes-dislikes) / float64(plays)
}

// AverageRating treats likes as 5 and dislikes as 1, 0 without ratings.
func AverageRating(likes, dislikes int) float64 {
	total := likes + dislikes
	if total == 0 {
		return 0
	}
	return float64(likes*likeRating+dislikes*dislikeRating) / float64(total)
}

// Stats fills the derived fields of s.
func Stats(s model.TrackStats) model.TrackStats {
	s.Popularity = Popularity(s.Likes, s.Dislikes, s.Plays)
	s.AverageRating = AverageRating(s.Likes, s.Dislikes)
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
