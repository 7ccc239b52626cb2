package posture

import (
	"sync/atomic"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
)

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithConfig sets the initial tunables. NewScorer validates them.
func WithConfig(cfg Config) Option {
	return func(s *Scorer) {
		c := cfg
		s.cfg.Store(&c)
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// Scorer is the one scoring entry point shared by every frame path.
// It is safe for concurrent use; SetConfig swaps tunables atomically so a
// frame is always scored under a single consistent Config.
type Scorer struct {
	cfg atomic.Pointer[Config]
	now func() time.Time
}

// NewScorer creates a scorer with the reference tunables unless overridden.
func NewScorer(opts ...Option) (*Scorer, error) {
	s := &Scorer{now: time.Now}
	def := DefaultConfig()
	s.cfg.Store(&def)
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Load().Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the tunables currently in effect.
func (s *Scorer) Config() Config {
	return *s.cfg.Load()
}

// SetConfig validates and installs new tunables. The old ones stay on error.
func (s *Scorer) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg.Store(&cfg)
	return nil
}

// Score returns the Metrics for set; nil means no person was detected.
func (s *Scorer) Score(set *pose.Set) (Metrics, error) {
	a, err := s.Assess(set)
	if err != nil {
		return Metrics{}, err
	}
	return a.Metrics, nil
}

// Assess is Score with the intermediate penalties attached.
func (s *Scorer) Assess(set *pose.Set) (Assessment, error) {
	return Evaluate(*s.cfg.Load(), set, s.now())
}

// ScoreAt is Score stamped with a caller-supplied capture time.
func (s *Scorer) ScoreAt(set *pose.Set, at time.Time) (Metrics, error) {
	a, err := Evaluate(*s.cfg.Load(), set, at)
	if err != nil {
		return Metrics{}, err
	}
	return a.Metrics, nil
}
