// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Defaults come from New; Load layers a YAML file and env vars on top.
//   - Every field carries a koanf key and, where it has a range, a validate tag.
//   - Scoring tunables convert to posture.Config, which owns their invariants.
package config

import (
	"runtime"
	"time"

	"github.com/okian/sitstraight/internal/domain/posture"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// LogFile, when set, also writes logs to a rotating file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory sample queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// DedupeSize sets how many sample ids are remembered. 0 means unbounded.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`

	Store     StoreConfig     `koanf:"store"`
	Extractor ExtractorConfig `koanf:"extractor"`
	Live      LiveConfig      `koanf:"live"`
	HTTP      HTTPConfig      `koanf:"http"`
	WS        WSConfig        `koanf:"ws"`
	Scoring   ScoringConfig   `koanf:"scoring"`
}

// StoreConfig selects where scored samples are kept.
type StoreConfig struct {
	Driver         string `koanf:"driver" validate:"oneof=memory sqlite"`
	Path           string `koanf:"path" validate:"required_if=Driver sqlite"`
	MemoryCapacity int    `koanf:"memory_capacity" validate:"gte=1"`
}

// ExtractorConfig configures the landmark model pool. An empty URL disables
// frame processing.
type ExtractorConfig struct {
	URL       string `koanf:"url" validate:"omitempty,url"`
	PoolSize  int    `koanf:"pool_size" validate:"gte=1"`
	TimeoutMS int    `koanf:"timeout_ms" validate:"gte=1"`
}

// LiveConfig configures the sampling loop.
type LiveConfig struct {
	// FramesDir is the directory of frames cycled by the loop. Empty disables it.
	FramesDir  string `koanf:"frames_dir"`
	IntervalMS int    `koanf:"interval_ms" validate:"gte=1"`
	AutoStart  bool   `koanf:"auto_start"`
}

// HTTPConfig tunes the HTTP server.
type HTTPConfig struct {
	MaxUploadBytes    int64   `koanf:"max_upload_bytes" validate:"gte=1"`
	RateLimit         float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst         int     `koanf:"rate_burst" validate:"gte=1"`
	ShutdownTimeoutMS int     `koanf:"shutdown_timeout_ms" validate:"gte=1"`
}

// WSConfig tunes the WebSocket stream.
type WSConfig struct {
	// IntervalMS re-sends the latest result this often. 0 disables it.
	IntervalMS int `koanf:"interval_ms" validate:"gte=0"`
}

// ScoringConfig mirrors posture.Config under koanf keys.
type ScoringConfig struct {
	HeadIdeal        float64 `koanf:"head_ideal"`
	HeadTolerance    float64 `koanf:"head_tolerance"`
	HeadDivisor      float64 `koanf:"head_divisor"`
	HeadSide         string  `koanf:"head_side"`
	ShoulderDivisor  float64 `koanf:"shoulder_divisor"`
	TorsoIdeal       float64 `koanf:"torso_ideal"`
	TorsoDivisor     float64 `koanf:"torso_divisor"`
	HeadWeight       float64 `koanf:"head_weight"`
	ShoulderWeight   float64 `koanf:"shoulder_weight"`
	TorsoWeight      float64 `koanf:"torso_weight"`
	AlignedThreshold int     `koanf:"aligned_threshold"`
	NeutralThreshold int     `koanf:"neutral_threshold"`
}

// New creates a Config with defaults.
func New() *Config {
	def := posture.DefaultConfig()
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Addr:        ":9080",
		QueueSize:   10_000,
		WorkerCount: runtime.NumCPU() * 2,
		DedupeSize:  50_000,
		Store: StoreConfig{
			Driver:         "memory",
			Path:           "sitstraight.db",
			MemoryCapacity: 10_000,
		},
		Extractor: ExtractorConfig{
			PoolSize:  1,
			TimeoutMS: 5_000,
		},
		Live: LiveConfig{
			IntervalMS: 350,
		},
		HTTP: HTTPConfig{
			MaxUploadBytes:    8 << 20,
			RateLimit:         20,
			RateBurst:         40,
			ShutdownTimeoutMS: 10_000,
		},
		WS: WSConfig{
			IntervalMS: 1_000,
		},
		Scoring: ScoringConfig{
			HeadIdeal:        def.HeadIdeal,
			HeadTolerance:    def.HeadTolerance,
			HeadDivisor:      def.HeadDivisor,
			HeadSide:         string(def.HeadSide),
			ShoulderDivisor:  def.ShoulderDivisor,
			TorsoIdeal:       def.TorsoIdeal,
			TorsoDivisor:     def.TorsoDivisor,
			HeadWeight:       def.HeadWeight,
			ShoulderWeight:   def.ShoulderWeight,
			TorsoWeight:      def.TorsoWeight,
			AlignedThreshold: def.AlignedThreshold,
			NeutralThreshold: def.NeutralThreshold,
		},
	}
}

// Posture converts the scoring section for the scorer.
func (c *Config) Posture() posture.Config {
	s := c.Scoring
	return posture.Config{
		HeadIdeal:        s.HeadIdeal,
		HeadTolerance:    s.HeadTolerance,
		HeadDivisor:      s.HeadDivisor,
		HeadSide:         posture.HeadSide(s.HeadSide),
		ShoulderDivisor:  s.ShoulderDivisor,
		TorsoIdeal:       s.TorsoIdeal,
		TorsoDivisor:     s.TorsoDivisor,
		HeadWeight:       s.HeadWeight,
		ShoulderWeight:   s.ShoulderWeight,
		TorsoWeight:      s.TorsoWeight,
		AlignedThreshold: s.AlignedThreshold,
		NeutralThreshold: s.NeutralThreshold,
	}
}

// LiveInterval returns the sampling cadence.
func (c *Config) LiveInterval() time.Duration {
	return time.Duration(c.Live.IntervalMS) * time.Millisecond
}

// ExtractorTimeout returns the per-frame inference deadline.
func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutMS) * time.Millisecond
}

// WSInterval returns the WebSocket re-send period.
func (c *Config) WSInterval() time.Duration {
	return time.Duration(c.WS.IntervalMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeoutMS) * time.Millisecond
}
