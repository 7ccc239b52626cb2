// Package extractor runs pose landmark models.
//
// Model handles are not assumed safe for concurrent inference. A Pool gives
// each handle to exactly one goroutine and reaches it only through a request
// channel, so one handle never sees two frames at once.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/pkg/logger"
	"github.com/okian/sitstraight/pkg/metrics"
)

const (
	defaultSize    = 1
	defaultTimeout = 5 * time.Second
)

// Model detects pose landmarks in one image. A nil set with a nil error means
// no person was found.
type Model interface {
	Detect(ctx context.Context, img image.Image) (*pose.Set, error)
	Close() error
}

// Factory creates one model handle.
type Factory func() (Model, error)

type request struct {
	ctx   context.Context
	img   image.Image
	reply chan result
}

type result struct {
	set *pose.Set
	err error
}

// Pool owns a fixed set of model handles.
type Pool struct {
	size    int
	timeout time.Duration

	reqs   chan request
	done   chan struct{}
	models []Model
	busy   atomic.Int32

	wg        sync.WaitGroup
	closeOnce sync.Once
	log       logger.Logger
}

// NewPool creates the model handles and starts one goroutine per handle.
func NewPool(factory Factory, opts ...Option) (*Pool, error) {
	if factory == nil {
		return nil, ErrNoFactory
	}
	p := &Pool{
		size:    defaultSize,
		timeout: defaultTimeout,
		reqs:    make(chan request),
		done:    make(chan struct{}),
		log:     logger.Get().Named("extractor"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < p.size; i++ {
		m, err := factory()
		if err != nil {
			for _, created := range p.models {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create model %d: %w", i, err)
		}
		p.models = append(p.models, m)
	}
	for i, m := range p.models {
		p.wg.Add(1)
		go p.run(i, m)
	}
	return p, nil
}

// Size returns the number of model handles.
func (p *Pool) Size() int { return p.size }

// Busy returns how many handles are running inference right now.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Extract waits for a free handle and runs inference on img.
func (p *Pool) Extract(ctx context.Context, img image.Image) (*pose.Set, error) {
	r := request{ctx: ctx, img: img, reply: make(chan result, 1)}
	select {
	case p.reqs <- r:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for model: %w", ctx.Err())
	case <-p.done:
		return nil, ErrClosed
	}
	return p.await(ctx, r)
}

// TryExtract runs inference only if a handle is idle right now, else ErrBusy.
func (p *Pool) TryExtract(ctx context.Context, img image.Image) (*pose.Set, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	r := request{ctx: ctx, img: img, reply: make(chan result, 1)}
	select {
	case p.reqs <- r:
	default:
		return nil, ErrBusy
	}
	return p.await(ctx, r)
}

func (p *Pool) await(ctx context.Context, r request) (*pose.Set, error) {
	select {
	case res := <-r.reply:
		return res.set, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for landmarks: %w", ctx.Err())
	}
}

// Close stops the owning goroutines and closes every handle.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		for _, m := range p.models {
			if err := m.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (p *Pool) run(id int, m Model) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case r := <-p.reqs:
			r.reply <- p.detect(id, m, r)
		}
	}
}

func (p *Pool) detect(id int, m Model, r request) result {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	if err := r.ctx.Err(); err != nil {
		return result{err: err}
	}
	ctx, cancel := context.WithTimeout(r.ctx, p.timeout)
	defer cancel()

	start := time.Now()
	set, err := m.Detect(ctx, r.img)
	metrics.RecordInferenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		reason := "model"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.RecordExtractorError(reason)
		p.log.Warn(r.ctx, "landmark detection failed", logger.Int("handle", id), logger.Error(err))
		return result{err: fmt.Errorf("detect landmarks: %w", err)}
	}
	return result{set: set}
}
