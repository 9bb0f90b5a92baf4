package simulate

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

var sentiments = []string{"strongly-dislike", "dislike", "neutral", "like", "strongly-like"}

// trackID matches the synthetic catalog ids served when no catalog database
// is configured.
func trackID(n int) string {
	return fmt.Sprintf("trk-%04d", n)
}

// taste is a listener's fixed opinion of a track, 0..4, so the same listener
// reacts the same way to the same track across a run.
func taste(seed int64, session, listener int, track string) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%d/%d/%d/%s", seed, session, listener, track)
	return int(h.Sum32() % uint32(len(sentiments)))
}

// generatePlan lays out every reaction of the run. The plan depends only on
// the config, so a seed reproduces a run.
func generatePlan(cfg *Config) []Planned {
	// #nosec G404 -- reproducible load, not security-sensitive
	rng := rand.New(rand.NewSource(cfg.Seed))
	tracks := cfg.Tracks
	if tracks <= 0 {
		tracks = 1
	}

	plan := make([]Planned, 0, cfg.Sessions*cfg.Listeners*cfg.Reactions)
	for s := 0; s < cfg.Sessions; s++ {
		for l := 0; l < cfg.Listeners; l++ {
			for r := 0; r < cfg.Reactions; r++ {
				id := trackID(1 + rng.Intn(tracks))
				p := Planned{
					Session:   s,
					Listener:  l,
					TrackID:   id,
					Sentiment: sentiments[taste(cfg.Seed, s, l, id)],
				}
				// Roughly one reaction in four carries an explicit intensity.
				if rng.Intn(4) == 0 {
					p.Intensity = 1 + rng.Intn(5)
				}
				plan = append(plan, p)
			}
		}
	}
	return plan
}
