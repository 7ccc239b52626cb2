// Package live samples frames at a fixed cadence and scores them.
package live

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/internal/extractor"
	"github.com/okian/sitstraight/internal/imaging"
	"github.com/okian/sitstraight/pkg/logger"
	"github.com/okian/sitstraight/pkg/metrics"
)

const defaultInterval = 350 * time.Millisecond

// Extractor finds landmarks in a frame without queueing behind other work.
type Extractor interface {
	TryExtract(ctx context.Context, img image.Image) (*pose.Set, error)
}

// Scorer turns landmarks into metrics.
type Scorer interface {
	Score(set *pose.Set) (posture.Metrics, error)
}

// Sink receives every scored frame.
type Sink func(ctx context.Context, m posture.Metrics)

// Sampler runs the live loop. Start and Stop may be called repeatedly.
type Sampler struct {
	src      FrameSource
	ext      Extractor
	scorer   Scorer
	sink     Sink
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	inFlight atomic.Bool
	scored   atomic.Int64
	dropped  atomic.Int64
	latest   atomic.Pointer[posture.Metrics]

	log logger.Logger
}

// NewSampler creates a stopped sampler.
func NewSampler(src FrameSource, ext Extractor, scorer Scorer, opts ...Option) (*Sampler, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	s := &Sampler{
		src:      src,
		ext:      ext,
		scorer:   scorer,
		sink:     func(context.Context, posture.Metrics) {},
		interval: defaultInterval,
		log:      logger.Get().Named("live"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the loop if it is not already running. It reports whether it started one.
func (s *Sampler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running.Store(true)
	s.wg.Add(1)
	go s.loop(loopCtx)
	s.log.Info(ctx, "live sampling started", logger.String("interval", s.interval.String()))
	return true
}

// Stop halts the loop and waits for the frame in flight. It reports whether a loop was running.
func (s *Sampler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.cancel()
	s.wg.Wait()
	s.running.Store(false)
	s.log.Info(context.Background(), "live sampling stopped",
		logger.Any("scored", s.scored.Load()), logger.Any("dropped", s.dropped.Load()))
	return true
}

// Running reports whether the loop is active.
func (s *Sampler) Running() bool { return s.running.Load() }

// Latest returns the most recent live result.
func (s *Sampler) Latest() (posture.Metrics, bool) {
	m := s.latest.Load()
	if m == nil {
		return posture.Metrics{}, false
	}
	return *m, true
}

// Stats returns loop counters.
func (s *Sampler) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running":     s.Running(),
		"interval_ms": s.interval.Milliseconds(),
		"scored":      s.scored.Load(),
		"dropped":     s.dropped.Load(),
	}
}

func (s *Sampler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var frames sync.WaitGroup
	defer frames.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.inFlight.CompareAndSwap(false, true) {
				s.drop()
				continue
			}
			frames.Add(1)
			go func() {
				defer frames.Done()
				defer s.inFlight.Store(false)
				s.tick(ctx)
			}()
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	data, err := s.src.Next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn(ctx, "frame source failed", logger.Error(err))
			metrics.RecordErrorByComponent("live", "source")
		}
		return
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		metrics.RecordDecodeError()
		s.log.Warn(ctx, "skipping undecodable frame", logger.Error(err))
		return
	}
	set, err := s.ext.TryExtract(ctx, img)
	switch {
	case errors.Is(err, extractor.ErrBusy):
		s.drop()
		return
	case err != nil:
		if ctx.Err() == nil {
			s.log.Warn(ctx, "landmark extraction failed", logger.Error(err))
		}
		return
	}

	start := time.Now()
	m, err := s.scorer.Score(set)
	if errors.Is(err, pose.ErrIncompleteLandmarks) {
		metrics.RecordIncompleteLandmarks()
		m, err = s.scorer.Score(nil)
	}
	if err != nil {
		s.log.Error(ctx, "scoring failed", logger.Error(err))
		return
	}
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)

	s.scored.Add(1)
	s.latest.Store(&m)
	s.sink(ctx, m)
}

func (s *Sampler) drop() {
	s.dropped.Add(1)
	metrics.RecordFrameDropped()
}
