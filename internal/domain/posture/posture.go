// Package posture turns a pose landmark set into a posture score and state.
//
// The pipeline is landmarks -> angles -> penalties -> slouch -> score -> state.
// Every step is a pure function of its input and the Config in effect.
package posture

import (
	"math"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
)

const maxScore = 100

// State is the categorical posture label.
type State string

// Posture states.
const (
	StateAligned State = "aligned"
	StateNeutral State = "neutral"
	StateSlouch  State = "slouch"
	StateUnknown State = "unknown"
)

// Metrics is the per-frame result.
type Metrics struct {
	// Timestamp is seconds since the Unix epoch.
	Timestamp     float64 `json:"timestamp"`
	Score         int     `json:"score"`
	State         State   `json:"state"`
	SlouchRaw     float64 `json:"slouch_raw"`
	HeadTilt      float64 `json:"head_tilt"`
	ShoulderAngle float64 `json:"shoulder_angle"`
	TorsoAngle    float64 `json:"torso_angle"`
}

// Time returns Timestamp as a time.Time.
func (m Metrics) Time() time.Time {
	sec, frac := math.Modf(m.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Assessment is Metrics plus the intermediate values that produced it.
type Assessment struct {
	Metrics

	HeadTiltLeft    float64 `json:"head_tilt_left"`
	HeadTiltRight   float64 `json:"head_tilt_right"`
	HeadPenalty     float64 `json:"head_penalty"`
	ShoulderPenalty float64 `json:"shoulder_penalty"`
	TorsoPenalty    float64 `json:"torso_penalty"`
}

// required lists the landmarks the scorer reads, in the order Evaluate unpacks them.
var required = []pose.Name{ //nolint:gochecknoglobals // fixed list
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftEar, pose.RightEar,
	pose.LeftHip, pose.RightHip,
}

// Required returns the landmark names the scorer needs.
func Required() []pose.Name {
	out := make([]pose.Name, len(required))
	copy(out, required)
	return out
}

// Unknown is the result for a frame with no person in it.
func Unknown(at time.Time) Metrics {
	return Metrics{
		Timestamp: epochSeconds(at),
		Score:     0,
		State:     StateUnknown,
		SlouchRaw: 1.0,
	}
}

// Evaluate scores set under cfg. A nil set yields Unknown; a set lacking a
// required point yields *pose.IncompleteLandmarksError. cfg is assumed valid.
func Evaluate(cfg Config, set *pose.Set, at time.Time) (Assessment, error) {
	if set == nil {
		return Assessment{Metrics: Unknown(at)}, nil
	}
	pts, err := set.Require(required...)
	if err != nil {
		return Assessment{}, err
	}
	lSh, rSh, lEar, rEar, lHip, rHip := pts[0], pts[1], pts[2], pts[3], pts[4], pts[5]

	var a Assessment
	a.HeadTiltLeft = Angle(lSh, lEar)
	a.HeadTiltRight = Angle(rSh, rEar)
	a.HeadTilt = pickHeadTilt(cfg, a.HeadTiltLeft, a.HeadTiltRight)
	a.HeadPenalty = HeadPenalty(cfg, a.HeadTilt)

	a.ShoulderAngle = Angle(lSh, rSh)
	a.ShoulderPenalty = ShoulderPenalty(cfg, a.ShoulderAngle)

	a.TorsoAngle = Angle(midpoint(lSh, rSh), midpoint(lHip, rHip))
	a.TorsoPenalty = TorsoPenalty(cfg, a.TorsoAngle)

	a.SlouchRaw = clamp01(cfg.HeadWeight*a.HeadPenalty +
		cfg.ShoulderWeight*a.ShoulderPenalty +
		cfg.TorsoWeight*a.TorsoPenalty)
	a.Score = ScoreOf(a.SlouchRaw)
	a.State = Classify(cfg, a.Score)
	a.Timestamp = epochSeconds(at)
	return a, nil
}

// Angle is |atan2(dy, dx)| in degrees for the segment p1->p2, in [0, 180].
// The absolute value folds mirror-image tilts onto the same angle.
func Angle(p1, p2 pose.Landmark) float64 {
	return math.Abs(math.Atan2(p2.Y-p1.Y, p2.X-p1.X) * 180 / math.Pi)
}

// HeadPenalty is a deadband around cfg.HeadIdeal followed by a linear ramp, clamped to [0,1].
func HeadPenalty(cfg Config, headTilt float64) float64 {
	return clamp01(math.Max(0, math.Abs(headTilt-cfg.HeadIdeal)-cfg.HeadTolerance) / cfg.HeadDivisor)
}

// ShoulderPenalty measures how far the shoulder line is from level, clamped to [0,1].
func ShoulderPenalty(cfg Config, shoulderAngle float64) float64 {
	return clamp01(math.Min(math.Abs(shoulderAngle), math.Abs(shoulderAngle-180)) / cfg.ShoulderDivisor)
}

// TorsoPenalty measures lean of the shoulder->hip line, clamped to [0,1].
func TorsoPenalty(cfg Config, torsoAngle float64) float64 {
	return clamp01(math.Abs(torsoAngle-cfg.TorsoIdeal) / cfg.TorsoDivisor)
}

// ScoreOf maps a slouch value to the 0..100 score.
func ScoreOf(slouch float64) int {
	s := int(math.Round(maxScore * (1 - clamp01(slouch))))
	switch {
	case s < 0:
		return 0
	case s > maxScore:
		return maxScore
	}
	return s
}

// Classify maps a score to a state under cfg's thresholds.
func Classify(cfg Config, score int) State {
	switch {
	case score >= cfg.AlignedThreshold:
		return StateAligned
	case score >= cfg.NeutralThreshold:
		return StateNeutral
	default:
		return StateSlouch
	}
}

func pickHeadTilt(cfg Config, left, right float64) float64 {
	if cfg.HeadSide == HeadSideUpright {
		if math.Abs(left-cfg.HeadIdeal) <= math.Abs(right-cfg.HeadIdeal) {
			return left
		}
		return right
	}
	return math.Min(left, right)
}

func midpoint(a, b pose.Landmark) pose.Landmark {
	return pose.Landmark{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
