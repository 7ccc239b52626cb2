package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*window)

// WithMaxSize bounds how many ids are remembered; <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(w *window) {
		w.maxSize = maxSize
	}
}
