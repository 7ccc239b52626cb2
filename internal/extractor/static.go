package extractor

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
)

// StaticModel returns the same result for every frame. It records how many
// calls overlapped so callers can check a handle was never shared.
type StaticModel struct {
	Set   *pose.Set
	Err   error
	Delay time.Duration

	calls      atomic.Int64
	inFlight   atomic.Int32
	maxOverlap atomic.Int32
	closed     atomic.Bool
}

// Detect implements Model.
func (m *StaticModel) Detect(ctx context.Context, _ image.Image) (*pose.Set, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxOverlap.Load()
		if n <= cur || m.maxOverlap.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.Set, m.Err
}

// Close implements Model.
func (m *StaticModel) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns how many frames the model has seen.
func (m *StaticModel) Calls() int64 { return m.calls.Load() }

// MaxOverlap returns the highest number of concurrent Detect calls observed.
func (m *StaticModel) MaxOverlap() int32 { return m.maxOverlap.Load() }

// Closed reports whether Close was called.
func (m *StaticModel) Closed() bool { return m.closed.Load() }
