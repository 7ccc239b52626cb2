package repository

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/sitstraight/internal/domain/posture"
)

// Summary aggregates a run of samples. Score statistics cover frames with a
// person in view; unknown frames only count towards Count and States.
type Summary struct {
	Count       int                   `json:"count"`
	Known       int                   `json:"known"`
	States      map[posture.State]int `json:"states"`
	MeanScore   float64               `json:"mean_score"`
	StdDevScore float64               `json:"stddev_score"`
	MedianScore float64               `json:"median_score"`
	P10Score    float64               `json:"p10_score"`
	MeanSlouch  float64               `json:"mean_slouch"`
	// AlignedRatio is aligned frames over known frames.
	AlignedRatio float64 `json:"aligned_ratio"`
	// LongestAlignedStreak counts consecutive aligned frames, unknown frames break it.
	LongestAlignedStreak int     `json:"longest_aligned_streak"`
	From                 float64 `json:"from,omitempty"`
	To                   float64 `json:"to,omitempty"`
}

// Summarize builds a Summary; samples need not be sorted.
func Summarize(samples []Sample) Summary {
	sum := Summary{
		Count: len(samples),
		States: map[posture.State]int{
			posture.StateAligned: 0,
			posture.StateNeutral: 0,
			posture.StateSlouch:  0,
			posture.StateUnknown: 0,
		},
	}
	if len(samples) == 0 {
		return sum
	}
	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sortByTime(ordered)
	sum.From, sum.To = ordered[0].Timestamp, ordered[len(ordered)-1].Timestamp

	scores := make([]float64, 0, len(ordered))
	slouch := make([]float64, 0, len(ordered))
	streak := 0
	for _, s := range ordered {
		sum.States[s.State]++
		if s.State == posture.StateAligned {
			streak++
			if streak > sum.LongestAlignedStreak {
				sum.LongestAlignedStreak = streak
			}
		} else {
			streak = 0
		}
		if s.State == posture.StateUnknown {
			continue
		}
		scores = append(scores, float64(s.Score))
		slouch = append(slouch, s.SlouchRaw)
	}

	sum.Known = len(scores)
	if sum.Known == 0 {
		return sum
	}
	sum.MeanScore, sum.StdDevScore = stat.MeanStdDev(scores, nil)
	if sum.Known == 1 {
		sum.StdDevScore = 0
	}
	sum.MeanSlouch = stat.Mean(slouch, nil)
	sort.Float64s(scores)
	sum.MedianScore = stat.Quantile(0.5, stat.Empirical, scores, nil)
	sum.P10Score = stat.Quantile(0.1, stat.Empirical, scores, nil)
	sum.AlignedRatio = float64(sum.States[posture.StateAligned]) / float64(sum.Known)
	return sum
}

func sortByTime(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })
}
