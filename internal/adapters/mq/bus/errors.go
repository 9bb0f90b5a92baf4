package bus

import "errors"

// Sentinel kinds for bus errors.
var (
	ErrClosed = errors.New("event bus closed")
	ErrEncode = errors.New("encode event")
)
