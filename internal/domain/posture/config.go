package posture

import (
	"fmt"
	"math"
)

// HeadSide selects which ear/shoulder pair supplies head_tilt.
type HeadSide string

const (
	// HeadSideMin takes the smaller of the two side angles.
	HeadSideMin HeadSide = "min"
	// HeadSideUpright takes the side whose angle is closest to the ideal.
	HeadSideUpright HeadSide = "upright"
)

// Reference tunables.
const (
	DefaultHeadIdeal        = 90.0
	DefaultHeadTolerance    = 10.0
	DefaultHeadDivisor      = 20.0
	DefaultShoulderDivisor  = 20.0
	DefaultTorsoIdeal       = 89.0
	DefaultTorsoDivisor     = 25.0
	DefaultHeadWeight       = 0.50
	DefaultShoulderWeight   = 0.30
	DefaultTorsoWeight      = 0.20
	DefaultAlignedThreshold = 80
	DefaultNeutralThreshold = 65

	weightSumTolerance = 1e-9
)

// Config holds every threshold, weight, deadband and divisor the scorer uses.
type Config struct {
	// HeadIdeal is the shoulder->ear angle of an upright head, in degrees.
	HeadIdeal float64 `json:"head_ideal"`
	// HeadTolerance is the deadband around HeadIdeal that costs nothing.
	HeadTolerance float64 `json:"head_tolerance"`
	// HeadDivisor turns degrees past the deadband into penalty units.
	HeadDivisor float64  `json:"head_divisor"`
	HeadSide    HeadSide `json:"head_side"`

	// ShoulderDivisor turns degrees away from level into penalty units.
	ShoulderDivisor float64 `json:"shoulder_divisor"`

	TorsoIdeal   float64 `json:"torso_ideal"`
	TorsoDivisor float64 `json:"torso_divisor"`

	// Weights of the three penalties; they must sum to 1.
	HeadWeight     float64 `json:"head_weight"`
	ShoulderWeight float64 `json:"shoulder_weight"`
	TorsoWeight    float64 `json:"torso_weight"`

	// Scores at or above AlignedThreshold are aligned, at or above NeutralThreshold neutral.
	AlignedThreshold int `json:"aligned_threshold"`
	NeutralThreshold int `json:"neutral_threshold"`
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() Config {
	return Config{
		HeadIdeal:        DefaultHeadIdeal,
		HeadTolerance:    DefaultHeadTolerance,
		HeadDivisor:      DefaultHeadDivisor,
		HeadSide:         HeadSideMin,
		ShoulderDivisor:  DefaultShoulderDivisor,
		TorsoIdeal:       DefaultTorsoIdeal,
		TorsoDivisor:     DefaultTorsoDivisor,
		HeadWeight:       DefaultHeadWeight,
		ShoulderWeight:   DefaultShoulderWeight,
		TorsoWeight:      DefaultTorsoWeight,
		AlignedThreshold: DefaultAlignedThreshold,
		NeutralThreshold: DefaultNeutralThreshold,
	}
}

// Validate checks the invariants the scoring math relies on.
func (c Config) Validate() error {
	for name, d := range map[string]float64{
		"head_divisor":     c.HeadDivisor,
		"shoulder_divisor": c.ShoulderDivisor,
		"torso_divisor":    c.TorsoDivisor,
	} {
		if !(d > 0) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: %s must be a positive number, got %v", ErrInvalidConfig, name, d)
		}
	}
	if c.HeadTolerance < 0 || math.IsNaN(c.HeadTolerance) {
		return fmt.Errorf("%w: head_tolerance must be >= 0", ErrInvalidConfig)
	}
	for name, w := range map[string]float64{
		"head_weight":     c.HeadWeight,
		"shoulder_weight": c.ShoulderWeight,
		"torso_weight":    c.TorsoWeight,
	} {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidConfig, name)
		}
	}
	if sum := c.HeadWeight + c.ShoulderWeight + c.TorsoWeight; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidConfig, sum)
	}
	if c.NeutralThreshold < 0 || c.AlignedThreshold > maxScore || c.NeutralThreshold > c.AlignedThreshold {
		return fmt.Errorf("%w: need 0 <= neutral_threshold (%d) <= aligned_threshold (%d) <= 100",
			ErrInvalidConfig, c.NeutralThreshold, c.AlignedThreshold)
	}
	switch c.HeadSide {
	case HeadSideMin, HeadSideUpright:
	default:
		return fmt.Errorf("%w: head_side %q", ErrInvalidConfig, c.HeadSide)
	}
	return nil
}
