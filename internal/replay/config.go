// Package replay drives a running sitstraight server with synthetic landmark
// sets and checks that what it recorded matches what was sent.
package replay

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
)

// Mode selects the endpoint samples are submitted to.
type Mode string

const (
	// ModeSamples posts to /samples and verifies the recorded count afterwards.
	ModeSamples Mode = "samples"
	// ModeScore posts to /score and checks each returned state synchronously.
	ModeScore Mode = "score"
)

// Config holds replay configuration.
type Config struct {
	BaseURL       string
	NumSamples    int
	Workers       int
	Timeout       time.Duration
	SettleTimeout time.Duration
	Mode          Mode
	Mix           Mix
	Seed          int64
	RunID         string
	OutputFile    string
	Verbose       bool
}

// Sample is one generated request body together with the posture it was drawn from.
type Sample struct {
	SampleID  string    `json:"sample_id"`
	TS        string    `json:"ts,omitempty"`
	Profile   Profile   `json:"-"`
	Landmarks *pose.Set `json:"landmarks"`
}

// AckResponse mirrors the body returned by POST /samples.
type AckResponse struct {
	Status    string `json:"status"`
	SampleID  string `json:"sample_id"`
	Duplicate bool   `json:"duplicate"`
}

// SummaryResponse is the subset of GET /summary the runner checks.
type SummaryResponse struct {
	Count        int                   `json:"count"`
	Known        int                   `json:"known"`
	States       map[posture.State]int `json:"states"`
	MeanScore    float64               `json:"mean_score"`
	AlignedRatio float64               `json:"aligned_ratio"`
}

// Stats collects the outcome of a run.
type Stats struct {
	StartTime     time.Time
	EndTime       time.Time
	Generated     int
	Accepted      int64
	Duplicate     int64
	Failed        int64
	Retried       int64
	Mismatched    int64
	ByProfile     map[Profile]int
	BaselineCount int
	FinalCount    int
}

// Profile is the posture a synthetic sample imitates.
type Profile string

const (
	ProfileUpright  Profile = "upright"
	ProfileSlouched Profile = "slouched"
	ProfileTilted   Profile = "tilted"
	ProfileAbsent   Profile = "absent"
)

// Mix weights profiles when drawing samples.
type Mix map[Profile]int

// DefaultMix mostly sits upright with some slouching and the occasional empty chair.
func DefaultMix() Mix {
	return Mix{
		ProfileUpright:  50,
		ProfileSlouched: 25,
		ProfileTilted:   15,
		ProfileAbsent:   10,
	}
}

// ParseMix reads "upright=50,slouched=25,..." into a Mix.
func ParseMix(s string) (Mix, error) {
	m := Mix{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, weight, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMix, part)
		}
		p := Profile(strings.TrimSpace(name))
		switch p {
		case ProfileUpright, ProfileSlouched, ProfileTilted, ProfileAbsent:
		default:
			return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidMix, name)
		}
		w, err := strconv.Atoi(strings.TrimSpace(weight))
		if err != nil || w < 0 {
			return nil, fmt.Errorf("%w: bad weight %q", ErrInvalidMix, weight)
		}
		m[p] = w
	}
	if m.total() == 0 {
		return nil, fmt.Errorf("%w: all weights are zero", ErrInvalidMix)
	}
	return m, nil
}

func (m Mix) total() int {
	t := 0
	for _, w := range m {
		t += w
	}
	return t
}

// profiles returns the weighted profiles in a stable order so a seed always
// yields the same draw.
func (m Mix) profiles() []Profile {
	out := make([]Profile, 0, len(m))
	for p, w := range m {
		if w > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the mix in the form ParseMix accepts.
func (m Mix) String() string {
	parts := make([]string, 0, len(m))
	for _, p := range m.profiles() {
		parts = append(parts, fmt.Sprintf("%s=%d", p, m[p]))
	}
	return strings.Join(parts, ",")
}
