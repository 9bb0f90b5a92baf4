package reactionlog

import "errors"

// Sentinel kinds for reaction log failures.
var (
	ErrClosed = errors.New("reaction log closed")
	ErrWrite  = errors.New("reaction log write failed")
)
