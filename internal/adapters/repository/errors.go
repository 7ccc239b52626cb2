package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("no samples recorded")
	ErrDuplicate    = errors.New("sample already recorded")
	ErrInvalidLimit = errors.New("invalid history limit")
	ErrInvalidRange = errors.New("invalid history range")
	ErrClosed       = errors.New("store closed")
)
