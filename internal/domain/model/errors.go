package model

import "errors"

// Sentinel error kinds shared across the engine. Callers match with errors.Is.
var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionFull               = errors.New("session is full")
	ErrInvalidReaction           = errors.New("invalid reaction")
	ErrRecommendationUnavailable = errors.New("recommendation unavailable")
	ErrTrackNotFound             = errors.New("track not found")
)
