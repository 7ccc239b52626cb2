package service

import "errors"

// Error constants.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrUnknownDriver = errors.New("unknown store driver")
)
