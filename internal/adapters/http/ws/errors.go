package ws

import "errors"

// Sentinel errors for the websocket adapter.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadFrame     = errors.New("bad frame")
)
