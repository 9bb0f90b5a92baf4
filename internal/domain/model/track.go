package model

// Features describes a track's content attributes. Energy, Valence,
// Acousticness and Danceability are in [0,1]; Era is a year; Tempo is BPM.
type Features struct {
	Genre        string  `json:"genre"`
	Era          int     `json:"era"`
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Tempo        float64 `json:"tempo"`
	Acousticness float64 `json:"acousticness"`
	Danceability float64 `json:"danceability"`
}

// Decade buckets the era, e.g. 1987 -> 1980.
func (f Features) Decade() int {
	return f.Era - f.Era%10
}

// Track is a catalog entry.
type Track struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	Features Features `json:"features"`
}

// TrackStats aggregates reactions and plays for one track across sessions.
type TrackStats struct {
	TrackID       string  `json:"trackId"`
	Plays         int     `json:"plays"`
	Likes         int     `json:"likes"`
	Dislikes      int     `json:"dislikes"`
	Popularity    float64 `json:"popularity"`
	AverageRating float64 `json:"averageRating"`
}
