package live

import "time"

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithInterval sets the sampling cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSink sets where scored frames go.
func WithSink(sink Sink) Option {
	return func(s *Sampler) {
		if sink != nil {
			s.sink = sink
		}
	}
}
