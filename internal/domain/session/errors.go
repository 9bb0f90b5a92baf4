package session

import "errors"

// ErrSessionExists is returned when creating a session with a taken id.
var ErrSessionExists = errors.New("session already exists")
