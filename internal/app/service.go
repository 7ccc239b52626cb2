// Package service wires the scorer, ingest pipeline, live loop and storage
// into the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/okian/sitstraight/internal/adapters/mq/queue"
	"github.com/okian/sitstraight/internal/adapters/mq/worker"
	"github.com/okian/sitstraight/internal/adapters/repository"
	"github.com/okian/sitstraight/internal/adapters/ws"
	"github.com/okian/sitstraight/internal/config"
	"github.com/okian/sitstraight/internal/domain/dedupe"
	"github.com/okian/sitstraight/internal/domain/model"
	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/internal/extractor"
	"github.com/okian/sitstraight/internal/imaging"
	"github.com/okian/sitstraight/internal/live"
	"github.com/okian/sitstraight/pkg/logger"
	"github.com/okian/sitstraight/pkg/metrics"
)

// Service implements the API dependencies for the posture service.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	scorer    *posture.Scorer
	store     repository.Store
	ownsStore bool
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	workers   *worker.Pool
	extractor *extractor.Pool
	hub       *ws.Hub
	sampler   *live.Sampler

	// Injected alternatives to configuration-driven components
	storeOpt repository.Store
	factory  extractor.Factory
	source   live.FrameSource

	latest atomic.Pointer[posture.Metrics]

	idMu    sync.Mutex
	entropy io.Reader
	now     func() time.Time

	// State
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	hubDone chan struct{}

	logger logger.Logger
}

// New constructs a new Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:     config.New(),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts the service components. The workers, hub and live
// loop run until Stop, independent of ctx cancellation.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting posture service...")

	scorer, err := posture.NewScorer(posture.WithConfig(cfg.Posture()), posture.WithClock(s.now))
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}
	s.scorer = scorer

	s.store, s.ownsStore = s.storeOpt, false
	if s.store == nil {
		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		s.store, s.ownsStore = store, true
	}
	s.logger.Info(ctx, "using store", logger.String("driver", cfg.Store.Driver))

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))

	factory := s.factory
	if factory == nil && cfg.Extractor.URL != "" {
		factory = extractor.RemoteFactory(cfg.Extractor.URL, &http.Client{Timeout: cfg.ExtractorTimeout()})
	}
	if factory != nil {
		pool, err := extractor.NewPool(factory,
			extractor.WithSize(cfg.Extractor.PoolSize),
			extractor.WithTimeout(cfg.ExtractorTimeout()),
		)
		if err != nil {
			s.closeComponents()
			return fmt.Errorf("extractor: %w", err)
		}
		s.extractor = pool
	} else {
		s.logger.Warn(ctx, "no landmark extractor configured; frame processing disabled")
	}

	src := s.source
	if src == nil && cfg.Live.FramesDir != "" {
		dir, err := live.NewDirSource(cfg.Live.FramesDir)
		if err != nil {
			s.closeComponents()
			return fmt.Errorf("live source: %w", err)
		}
		src = dir
	}

	if src != nil && s.extractor != nil {
		sampler, err := live.NewSampler(src, s.extractor, s.scorer,
			live.WithInterval(cfg.LiveInterval()),
			live.WithSink(s.recordLive),
		)
		if err != nil {
			s.closeComponents()
			return fmt.Errorf("live sampler: %w", err)
		}
		s.sampler = sampler
	} else if src != nil {
		s.logger.Warn(ctx, "live frames configured without an extractor; live loop disabled")
	}

	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.hub = ws.New(s.Latest, cfg.WSInterval())
	s.hubDone = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.hub.Run(s.runCtx)
	}(s.hubDone)

	s.workers = worker.NewPool(cfg.WorkerCount, s.queue, s.scorer, s,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithClock(s.now),
	)
	s.workers.Start(s.runCtx)

	if s.sampler != nil && cfg.Live.AutoStart {
		s.sampler.Start(s.runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "posture service started",
		logger.Int("workers", s.workers.Size()),
		logger.Int("queueSize", s.queue.Capacity()),
		logger.Int("dedupeSize", cfg.DedupeSize),
		logger.Bool("live", s.sampler != nil),
		logger.Bool("extractor", s.extractor != nil),
	)
	return nil
}

// Stop gracefully shuts down the service. Queued samples are scored before
// a configured store is closed; an injected store stays open.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping posture service...")

	if s.sampler != nil {
		s.sampler.Stop()
	}
	if err := s.workers.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.cancel()
	<-s.hubDone
	s.closeComponents()

	s.started = false
	s.logger.Info(ctx, "posture service stopped")
}

func (s *Service) closeComponents() {
	if s.extractor != nil {
		_ = s.extractor.Close()
		s.extractor = nil
	}
	if s.store != nil && s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "store close failed", logger.Error(err))
		}
	}
	s.sampler = nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return repository.NewMemoryStore(repository.WithCapacity(cfg.MemoryCapacity)), nil
	case "sqlite":
		store, err := repository.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

// Record persists a scored frame, makes it the latest result and pushes it
// to stream subscribers. An empty id gets a time-ordered ULID.
func (s *Service) Record(ctx context.Context, id, source string, m posture.Metrics) error {
	if id == "" {
		id = s.newID(m.Time())
	}
	s.latest.Store(&m)
	s.hub.Publish(m)
	metrics.RecordFrameScored(string(m.State), source, m.Score, m.SlouchRaw)

	if err := s.store.Save(ctx, repository.Sample{ID: id, Source: source, Metrics: m}); err != nil {
		return fmt.Errorf("save sample %s: %w", id, err)
	}
	return nil
}

func (s *Service) recordLive(ctx context.Context, m posture.Metrics) {
	if err := s.Record(ctx, "", model.SourceLive, m); err != nil {
		s.logger.Warn(ctx, "failed to record live frame", logger.Error(err))
	}
}

// record stores a synchronously scored frame. Storage failures are logged;
// the caller still gets its metrics.
func (s *Service) record(ctx context.Context, source string, m posture.Metrics) {
	if err := s.Record(ctx, "", source, m); err != nil {
		s.logger.Warn(ctx, "failed to record frame",
			logger.String("source", source), logger.Error(err))
	}
}

func (s *Service) newID(at time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), s.entropy)
	if err != nil {
		// Monotonic entropy overflows only after 2^80 ids in one millisecond.
		return ulid.Make().String()
	}
	return id.String()
}

// ScoreLandmarks scores a landmark set posted by a client. A nil set means
// nobody is in view.
func (s *Service) ScoreLandmarks(ctx context.Context, set *pose.Set) (posture.Metrics, error) {
	if !s.isStarted() {
		return posture.Metrics{}, ErrNotStarted
	}
	start := time.Now()
	m, err := s.scorer.Score(set)
	if err != nil {
		if errors.Is(err, pose.ErrIncompleteLandmarks) {
			metrics.RecordIncompleteLandmarks()
		}
		return posture.Metrics{}, err
	}
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	s.record(ctx, model.SourceScore, m)
	return m, nil
}

// ProcessFrame decodes an image, extracts landmarks and scores them. Like the
// live loop, a partially visible person scores as unknown.
func (s *Service) ProcessFrame(ctx context.Context, frame []byte) (posture.Metrics, error) {
	s.mu.RLock()
	started, ext := s.started, s.extractor
	s.mu.RUnlock()
	if !started {
		return posture.Metrics{}, ErrNotStarted
	}
	if ext == nil {
		return posture.Metrics{}, fmt.Errorf("process frame: %w", extractor.ErrUnavailable)
	}
	img, _, err := imaging.Decode(frame)
	if err != nil {
		metrics.RecordDecodeError()
		return posture.Metrics{}, err
	}
	set, err := ext.Extract(ctx, img)
	if err != nil {
		return posture.Metrics{}, err
	}

	start := time.Now()
	m, err := s.scorer.Score(set)
	if errors.Is(err, pose.ErrIncompleteLandmarks) {
		metrics.RecordIncompleteLandmarks()
		m, err = s.scorer.Score(nil)
	}
	if err != nil {
		return posture.Metrics{}, err
	}
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	s.record(ctx, model.SourceProcess, m)
	return m, nil
}

// SeenAndRecord atomically checks if a sample id was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord removes a sample id from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of remembered sample ids.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits a sample for asynchronous scoring.
func (s *Service) Enqueue(ctx context.Context, smp model.Sample) bool {
	if !s.isStarted() {
		return false
	}
	s.logger.Debug(ctx, "enqueueing sample",
		logger.String("sampleID", smp.SampleID),
		logger.Bool("landmarks", smp.Landmarks != nil),
	)
	return s.queue.Enqueue(ctx, smp)
}

// Latest returns the most recent result from any scoring path.
func (s *Service) Latest() (posture.Metrics, bool) {
	m := s.latest.Load()
	if m == nil {
		return posture.Metrics{}, false
	}
	return *m, true
}

// StartLive starts the live loop on the service's own lifetime.
func (s *Service) StartLive(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}
	if s.sampler == nil {
		return false, live.ErrNoSource
	}
	started := s.sampler.Start(s.runCtx)
	if started {
		s.logger.Info(ctx, "live loop started on request")
	}
	return started, nil
}

// StopLive stops the live loop.
func (s *Service) StopLive() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}
	if s.sampler == nil {
		return false, live.ErrNoSource
	}
	return s.sampler.Stop(), nil
}

// History returns recorded samples.
func (s *Service) History(ctx context.Context, q repository.Query) ([]repository.Sample, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.store.History(ctx, q)
}

// Summary aggregates recorded samples since the given time.
func (s *Service) Summary(ctx context.Context, since time.Time) (repository.Summary, error) {
	if !s.isStarted() {
		return repository.Summary{}, ErrNotStarted
	}
	return s.store.Summary(ctx, since)
}

// Stream returns the WebSocket hub, or nil before Start.
func (s *Service) Stream() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hub == nil {
		return nil
	}
	return s.hub
}

// ApplyConfig hot-swaps the tunables that can change without a restart:
// the scoring configuration and the log level.
func (s *Service) ApplyConfig(cfg *config.Config) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	if err := s.scorer.SetConfig(cfg.Posture()); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg.Scoring = cfg.Scoring
	s.cfg.LogLevel = cfg.LogLevel
	s.mu.Unlock()
	s.logger.Info(context.Background(), "configuration reloaded",
		logger.String("log_level", cfg.LogLevel),
		logger.String("head_side", cfg.Scoring.HeadSide),
	)
	return nil
}

// ScoringConfig returns the scorer's current tunables.
func (s *Service) ScoringConfig() posture.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return s.cfg.Posture()
	}
	return s.scorer.Config()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
		"dedupeSize":  s.cfg.DedupeSize,
		"storeDriver": s.cfg.Store.Driver,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["processed"] = s.workers.Processed()
	stats["seenSamples"] = s.deduper.Size()
	stats["wsClients"] = s.hub.Count()
	if n, err := s.store.Count(ctx); err == nil {
		stats["storedSamples"] = n
	}
	if s.extractor != nil {
		stats["extractor"] = map[string]interface{}{
			"size": s.extractor.Size(),
			"busy": s.extractor.Busy(),
		}
	}
	if s.sampler != nil {
		stats["live"] = s.sampler.Stats()
	}
	if m, ok := s.Latest(); ok {
		stats["latest"] = m
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(s.workers.Size())
	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
