package extractor

import "errors"

// Sentinel errors for the landmark extractor.
var (
	ErrBusy        = errors.New("extractor busy")
	ErrClosed      = errors.New("extractor closed")
	ErrNoFactory   = errors.New("model factory is nil")
	ErrUnavailable = errors.New("landmark model unavailable")
)
