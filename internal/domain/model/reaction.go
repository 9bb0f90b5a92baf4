package model

import (
	"fmt"
	"time"
)

// Sentiment is a listener's categorical reaction to a track.
type Sentiment string

// Recognized sentiments.
const (
	StronglyDislike Sentiment = "strongly-dislike"
	Dislike         Sentiment = "dislike"
	Neutral         Sentiment = "neutral"
	Like            Sentiment = "like"
	StronglyLike    Sentiment = "strongly-like"
)

// Score bounds shared by intensities and preference scores.
const (
	MinScore = 1
	MaxScore = 5
)

var sentimentScores = map[Sentiment]int{
	StronglyDislike: 1,
	Dislike:         2,
	Neutral:         3,
	Like:            4,
	StronglyLike:    5,
}

// Valid reports whether s is a recognized sentiment.
func (s Sentiment) Valid() bool {
	_, ok := sentimentScores[s]
	return ok
}

// Score maps the sentiment onto the 1..5 scale. Unknown sentiments score 0.
func (s Sentiment) Score() int {
	return sentimentScores[s]
}

// Reaction is an immutable listener reaction to a track.
type Reaction struct {
	TrackID   string    `json:"trackId" validate:"required"`
	Sentiment Sentiment `json:"sentiment" validate:"required"`
	// Intensity is 1..5; zero means absent. Range checks live in Validate.
	Intensity int       `json:"intensity,omitempty"`
	ProfileID string    `json:"profileId" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks sentiment and intensity ranges.
func (r Reaction) Validate() error {
	if r.TrackID == "" {
		return fmt.Errorf("%w: missing track id", ErrInvalidReaction)
	}
	if !r.Sentiment.Valid() {
		return fmt.Errorf("%w: unknown sentiment %q", ErrInvalidReaction, r.Sentiment)
	}
	if r.Intensity != 0 && (r.Intensity < MinScore || r.Intensity > MaxScore) {
		return fmt.Errorf("%w: intensity %d out of range", ErrInvalidReaction, r.Intensity)
	}
	return nil
}

// Score is the preference score carried by the reaction: the explicit intensity
// when present, otherwise the sentiment's mapping.
func (r Reaction) Score() int {
	if r.Intensity != 0 {
		return r.Intensity
	}
	return r.Sentiment.Score()
}

// Polarity classifies a reaction for counters and adaptive recommendations.
type Polarity int

// Polarity values.
const (
	PolarityNeutral Polarity = iota
	PolarityPositive
	PolarityNegative
)

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "positive"
	case PolarityNegative:
		return "negative"
	default:
		return "neutral"
	}
}

// Polarity is positive for a score of 4 or more and negative for 2 or less.
func (r Reaction) Polarity() Polarity {
	switch s := r.Score(); {
	case s >= 4:
		return PolarityPositive
	case s > 0 && s <= 2:
		return PolarityNegative
	default:
		return PolarityNeutral
	}
}

// ReactionJob is a reaction travelling through the async pipeline.
type ReactionJob struct {
	SessionID    string
	ConnectionID string
	Reaction     Reaction
	EnqueuedAt   time.Time
}
