package recommend

import (
	"github.com/okian/attune/internal/domain/model"
)

// Merge blends the three strategy lists. A track's score is the sum of
// strategy score times strategy weight over every strategy that proposed it,
// and its reasons are the union of theirs. The result is ordered by score
// and holds at most limit entries.
func Merge(w Weights, limit int, collaborative, content, contextual []model.Recommendation) []model.Recommendation {
	merged := make(map[string]*model.Recommendation)
	order := make([]string, 0, len(collaborative)+len(content)+len(contextual))

	add := func(list []model.Recommendation, weight float64) {
		for _, r := range list {
			m, ok := merged[r.TrackID]
			if !ok {
				m = &model.Recommendation{TrackID: r.TrackID}
				merged[r.TrackID] = m
				order = append(order, r.TrackID)
			}
			m.Score += r.Score * weight
			for _, reason := range r.Reasons {
				if !m.HasReason(reason) {
					m.Reasons = append(m.Reasons, reason)
				}
			}
		}
	}
	add(collaborative, w.Collaborative)
	add(content, w.Content)
	add(contextual, w.Contextual)

	out := make([]model.Recommendation, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return top(out, limit)
}

// top sorts recs and keeps the first n.
func top(recs []model.Recommendation, n int) []model.Recommendation {
	model.SortRecommendations(recs)
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs
}
