package posture

import "errors"

// Sentinel errors for posture scoring.
var (
	ErrInvalidConfig = errors.New("invalid scoring config")
)
