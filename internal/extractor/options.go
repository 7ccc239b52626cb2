package extractor

import "time"

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithSize sets how many model handles (and owning goroutines) the pool runs.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithTimeout bounds a single inference.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}
