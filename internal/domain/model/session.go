// Package model contains domain models passed between layers.
package model

import "time"

// Default session settings applied when a caller leaves a field unset.
const (
	DefaultMaxParticipants   = 10
	DefaultAutoNext          = true
	DefaultReactionThreshold = 3
)

// Settings configures a session's behavior.
type Settings struct {
	MaxParticipants   int  `json:"maxParticipants"`
	AutoNext          bool `json:"autoNext"`
	ReactionThreshold int  `json:"reactionThreshold"`
}

// SettingsPatch carries caller-provided settings; nil fields keep defaults.
type SettingsPatch struct {
	MaxParticipants   *int  `json:"maxParticipants,omitempty" validate:"omitempty,min=1,max=1000"`
	AutoNext          *bool `json:"autoNext,omitempty"`
	ReactionThreshold *int  `json:"reactionThreshold,omitempty" validate:"omitempty,min=1"`
}

// DefaultSettings returns the settings every new session starts from.
func DefaultSettings() Settings {
	return Settings{
		MaxParticipants:   DefaultMaxParticipants,
		AutoNext:          DefaultAutoNext,
		ReactionThreshold: DefaultReactionThreshold,
	}
}

// Merge applies the patch over s.
func (p SettingsPatch) Merge(s Settings) Settings {
	if p.MaxParticipants != nil {
		s.MaxParticipants = *p.MaxParticipants
	}
	if p.AutoNext != nil {
		s.AutoNext = *p.AutoNext
	}
	if p.ReactionThreshold != nil {
		s.ReactionThreshold = *p.ReactionThreshold
	}
	return s
}

// TrackPlay is the track currently playing in a session.
type TrackPlay struct {
	TrackID   string    `json:"trackId"`
	Title     string    `json:"title,omitempty"`
	Artist    string    `json:"artist,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// Participant is a user present in a session over one connection.
type Participant struct {
	UserID        string        `json:"userId"`
	ProfileID     string        `json:"profileId"`
	ConnectionID  string        `json:"connectionId"`
	JoinedAt      time.Time     `json:"joinedAt"`
	Reactions     []Reaction    `json:"reactions"`
	Engagement    float64       `json:"engagement"`
	ListeningTime time.Duration `json:"listeningTime"`
}

// JoinRequest identifies who joins a session and over which connection.
type JoinRequest struct {
	UserID       string `json:"userId" validate:"required"`
	ProfileID    string `json:"profileId" validate:"required"`
	ConnectionID string `json:"connectionId" validate:"required"`
}

// Metrics summarizes a session. Computed on demand.
type Metrics struct {
	TracksPlayed         int           `json:"tracksPlayed"`
	TotalReactions       int           `json:"totalReactions"`
	PositiveReactions    int           `json:"positiveReactions"`
	NegativeReactions    int           `json:"negativeReactions"`
	PositivityRatio      float64       `json:"positivityRatio"`
	AverageEngagement    float64       `json:"averageEngagement"`
	ParticipantCount     int           `json:"participantCount"`
	Duration             time.Duration `json:"duration"`
	CurrentTrackID       string        `json:"currentTrackId,omitempty"`
	CurrentTrackDislikes int           `json:"currentTrackDislikes"`
}

// Session is a snapshot of a live listening session. Snapshots returned by the
// store are deep copies and safe to read without locks.
type Session struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"createdAt"`
	Participants []Participant `json:"participants"`
	CurrentTrack *TrackPlay    `json:"currentTrack,omitempty"`
	Reactions    []Reaction    `json:"reactions"`
	PlayedTracks []string      `json:"playedTracks"`
	Metrics      Metrics       `json:"metrics"`
	Settings     Settings      `json:"settings"`
}

// ProfileIDs returns the profile ids of the current participants in join order.
func (s *Session) ProfileIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.ProfileID)
	}
	return ids
}

// Played reports whether trackID has been the current track at any point.
func (s *Session) Played(trackID string) bool {
	for _, id := range s.PlayedTracks {
		if id == trackID {
			return true
		}
	}
	return false
}
