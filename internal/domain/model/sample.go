// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
)

// Source names the path a scored frame arrived on.
const (
	SourceLive    = "live"
	SourceProcess = "process"
	SourceScore   = "score"
	SourceSamples = "samples"
)

// Sample is a landmark set submitted for asynchronous scoring.
type Sample struct {
	SampleID  string    // unique id for idempotency
	Source    string    // one of the Source constants
	TS        time.Time // capture time; zero means time of receipt
	Landmarks *pose.Set // nil when nobody was in view
}

// CapturedAt returns TS, or fallback when TS is unset.
func (s Sample) CapturedAt(fallback time.Time) time.Time {
	if s.TS.IsZero() {
		return fallback
	}
	return s.TS
}
