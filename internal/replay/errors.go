package replay

import "errors"

var (
	ErrInvalidMix     = errors.New("invalid profile mix")
	ErrInvalidConfig  = errors.New("invalid replay config")
	ErrUnhealthy      = errors.New("service health check failed")
	ErrCountMismatch  = errors.New("recorded sample count mismatch")
	ErrStateMismatch  = errors.New("scored state does not match profile")
	ErrUnexpectedCode = errors.New("unexpected status code")
)
