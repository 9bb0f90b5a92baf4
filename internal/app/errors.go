package service

import "errors"

// Sentinel kinds for service state errors.
var (
	ErrNotStarted = errors.New("service not started")
)
