package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrInvalidScore = errors.New("preference score out of range")
	ErrInvalidTrack = errors.New("invalid track")
)
