package config

import "errors"

var (
	// ErrInvalidConfig wraps validation failures, including scoring tunables.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file, env and decode failures.
	ErrLoadConfig = errors.New("load config failed")
	// ErrWatchConfig is returned when a config file cannot be watched.
	ErrWatchConfig = errors.New("watch config failed")
)
