package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/sitstraight/internal/imaging"
)

const (
	defaultRateLimit       = 20
	defaultRateBurst       = 40
	defaultMaxJSONBytes    = 1 << 20
	defaultMaxHistoryLimit = 10000
)

type options struct {
	maxUploadBytes  int64
	maxJSONBytes    int64
	maxHistoryLimit int
	rateLimit       float64
	rateBurst       int
	stream          http.Handler
	validate        *validator.Validate
}

func defaultOptions() options {
	return options{
		maxUploadBytes:  imaging.DefaultMaxBytes,
		maxJSONBytes:    defaultMaxJSONBytes,
		maxHistoryLimit: defaultMaxHistoryLimit,
		rateLimit:       defaultRateLimit,
		rateBurst:       defaultRateBurst,
		validate:        newValidator(),
	}
}

// Option applies a configuration option to the Server.
type Option func(*options)

// WithMaxUploadBytes caps frame uploads on /process.
func WithMaxUploadBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

// WithMaxJSONBytes caps the JSON bodies of /score and /samples.
func WithMaxJSONBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxJSONBytes = n
		}
	}
}

// WithRateLimit sets the per-client request rate for the scoring endpoints.
// A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond >= 0 {
			o.rateLimit = perSecond
		}
		if burst > 0 {
			o.rateBurst = burst
		}
	}
}

// WithMaxHistoryLimit caps GET /history?limit.
func WithMaxHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHistoryLimit = n
		}
	}
}

// WithStream mounts a streaming handler at /ws.
func WithStream(h http.Handler) Option {
	return func(o *options) { o.stream = h }
}

// WithValidator shares a validator instance with the request decoders.
func WithValidator(v *validator.Validate) Option {
	return func(o *options) {
		if v != nil {
			o.validate = v
		}
	}
}
