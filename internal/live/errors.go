package live

import "errors"

// Sentinel errors for the live sampler.
var (
	ErrNoFrames = errors.New("no frames available")
	ErrNoSource = errors.New("live sampling has no frame source")
)
