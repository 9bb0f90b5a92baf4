package model

import "sort"

// Reason names why a track was recommended.
type Reason string

// Recommendation reasons.
const (
	ReasonCollaborative Reason = "collaborative"
	ReasonContent       Reason = "content"
	ReasonContextual    Reason = "contextual"
	ReasonSimilar       Reason = "similar"
	ReasonContrasting   Reason = "contrasting"
	ReasonDiverse       Reason = "diverse"
)

// Recommendation is a scored candidate track.
type Recommendation struct {
	TrackID string   `json:"trackId"`
	Score   float64  `json:"score"`
	Reasons []Reason `json:"reasons"`
}

// HasReason reports whether r carries reason.
func (r Recommendation) HasReason(reason Reason) bool {
	for _, x := range r.Reasons {
		if x == reason {
			return true
		}
	}
	return false
}

// SortRecommendations orders by score descending, then track id ascending.
func SortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].TrackID < recs[j].TrackID
	})
}

// Peer is a profile whose preferences resemble another profile's.
type Peer struct {
	ProfileID  string  `json:"profileId"`
	Similarity float64 `json:"similarity"`
}
