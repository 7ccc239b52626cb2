// Package repository stores scored posture samples.
package repository

import (
	"context"
	"math"
	"time"

	"github.com/okian/sitstraight/internal/domain/posture"
)

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// Sample is one recorded result. Source names the path that produced it
// (live, process, score, samples).
type Sample struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	posture.Metrics
}

// Query selects samples by time. Zero Since/Until leave that side open;
// Limit keeps the most recent matches (0 means the default).
type Query struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Store provides read/write access to recorded samples.
type Store interface {
	// Save records a sample. Returns ErrDuplicate if the id is already stored.
	Save(ctx context.Context, s Sample) error

	// Latest returns the most recent sample or ErrNotFound.
	Latest(ctx context.Context) (Sample, error)

	// History returns matching samples oldest first.
	History(ctx context.Context, q Query) ([]Sample, error)

	// Summary aggregates every sample at or after since.
	Summary(ctx context.Context, since time.Time) (Summary, error)

	// Count returns the number of stored samples.
	Count(ctx context.Context) (int, error)

	Close() error
}

// bounds converts a query into epoch-second bounds and an effective limit.
func (q Query) bounds() (lo, hi float64, limit int, err error) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if !q.Since.IsZero() {
		lo = epoch(q.Since)
	}
	if !q.Until.IsZero() {
		hi = epoch(q.Until)
	}
	switch {
	case q.Limit < 0:
		return 0, 0, 0, ErrInvalidLimit
	case q.Limit == 0:
		limit = defaultHistoryLimit
	case q.Limit > maxHistoryLimit:
		limit = maxHistoryLimit
	default:
		limit = q.Limit
	}
	if lo > hi {
		return 0, 0, 0, ErrInvalidRange
	}
	return lo, hi, limit, nil
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
