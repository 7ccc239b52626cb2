package replay

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
)

// jitter bounds the per-coordinate noise added to every generated point.
const jitter = 0.003

// seated is an upright sitter facing the camera.
var seated = map[pose.Name]pose.Landmark{
	pose.LeftShoulder:  {X: 0.60, Y: 0.40, Visibility: 0.99},
	pose.RightShoulder: {X: 0.40, Y: 0.40, Visibility: 0.99},
	pose.LeftEar:       {X: 0.60, Y: 0.20, Visibility: 0.95},
	pose.RightEar:      {X: 0.40, Y: 0.20, Visibility: 0.95},
	pose.LeftHip:       {X: 0.61, Y: 0.75, Visibility: 0.90},
	pose.RightHip:      {X: 0.41, Y: 0.75, Visibility: 0.90},
}

// Expected is the state the default scoring config assigns to a profile.
func (p Profile) Expected() posture.State {
	switch p {
	case ProfileUpright:
		return posture.StateAligned
	case ProfileSlouched:
		return posture.StateSlouch
	case ProfileTilted:
		return posture.StateNeutral
	default:
		return posture.StateUnknown
	}
}

// generateSamples draws n samples from mix. Each sample has its own PCG stream
// keyed by (seed, index) so the output does not depend on scheduling.
func generateSamples(ctx context.Context, cfg *Config, start time.Time) ([]Sample, error) {
	logger.Get().Info(ctx, "generating samples",
		logger.Int("count", cfg.NumSamples),
		logger.String("mix", cfg.Mix.String()),
		logger.Int("seed", int(cfg.Seed)))

	samples := make([]Sample, cfg.NumSamples)
	profiles := cfg.Mix.profiles()
	total := cfg.Mix.total()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(i)))
			p := pick(rng, cfg.Mix, profiles, total)
			set, err := landmarksFor(rng, p)
			if err != nil {
				return err
			}
			samples[i] = Sample{
				SampleID:  fmt.Sprintf("%s-%06d", cfg.RunID, i),
				TS:        start.Add(time.Duration(i) * time.Second).UTC().Format(time.RFC3339),
				Profile:   p,
				Landmarks: set,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

func pick(rng *rand.Rand, mix Mix, profiles []Profile, total int) Profile {
	n := rng.IntN(total)
	for _, p := range profiles {
		n -= mix[p]
		if n < 0 {
			return p
		}
	}
	return profiles[len(profiles)-1]
}

// landmarksFor bends the seated pose into p and adds jitter.
// An absent sitter has no landmarks at all.
func landmarksFor(rng *rand.Rand, p Profile) (*pose.Set, error) {
	if p == ProfileAbsent {
		return nil, nil
	}
	pts := make(map[pose.Name]pose.Landmark, len(seated))
	for n, l := range seated {
		pts[n] = l
	}

	switch p {
	case ProfileSlouched:
		// Head pushed forward past the shoulders, hips slid out.
		for _, n := range []pose.Name{pose.LeftEar, pose.RightEar} {
			l := pts[n]
			l.X += 0.12
			pts[n] = l
		}
		for _, n := range []pose.Name{pose.LeftHip, pose.RightHip} {
			l := pts[n]
			l.X -= 0.10
			pts[n] = l
		}
	case ProfileTilted:
		// Right side dropped.
		for _, n := range []pose.Name{pose.RightShoulder, pose.RightEar} {
			l := pts[n]
			l.Y += 0.06
			pts[n] = l
		}
	}

	for _, n := range posture.Required() {
		l := pts[n]
		l.X += (rng.Float64()*2 - 1) * jitter
		l.Y += (rng.Float64()*2 - 1) * jitter
		pts[n] = l
	}
	return pose.FromNamed(pts)
}

func countProfiles(samples []Sample) map[Profile]int {
	out := make(map[Profile]int)
	for _, s := range samples {
		out[s.Profile]++
	}
	return out
}
