package bus

import "errors"

// Sentinel kinds for bus errors.
var (
	ErrClosed = errors.New("bus closed")
)
