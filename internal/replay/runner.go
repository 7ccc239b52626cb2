package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sitstraight/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a replay against cfg.BaseURL and returns what happened.
// A non-nil error with non-nil stats means the run finished but verification failed.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting posture replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("runID", cfg.RunID),
		logger.Int("samples", cfg.NumSamples),
		logger.Int("workers", cfg.Workers),
		logger.String("mode", string(cfg.Mode)),
		logger.String("timeout", cfg.Timeout.String()))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, err
	}

	// Timestamps end at the start of the run so every sample falls inside the summary window.
	first := stats.StartTime.Add(-time.Duration(cfg.NumSamples) * time.Second)
	samples, err := generateSamples(ctx, cfg, first)
	if err != nil {
		return nil, fmt.Errorf("sample generation failed: %w", err)
	}
	stats.Generated = len(samples)
	stats.ByProfile = countProfiles(samples)

	window := summaryWindowFor(cfg.NumSamples)
	if cfg.Mode == ModeSamples {
		base, err := fetchSummary(ctx, client, window)
		if err != nil {
			return nil, fmt.Errorf("baseline summary failed: %w", err)
		}
		stats.BaselineCount = base.Count
	}

	submitSamples(ctx, cfg, client, samples, stats)

	var verifyErr error
	switch cfg.Mode {
	case ModeSamples:
		stats.FinalCount, verifyErr = waitForRecorded(ctx, client, window, stats.BaselineCount+int(stats.Accepted), cfg.SettleTimeout)
	case ModeScore:
		if stats.Mismatched > 0 {
			verifyErr = fmt.Errorf("%w: %d of %d", ErrStateMismatch, stats.Mismatched, stats.Accepted)
		}
	}

	if err := saveSamples(ctx, cfg, samples); err != nil {
		return stats, fmt.Errorf("failed to save samples: %w", err)
	}

	stats.EndTime = time.Now()
	displayFinalStats(ctx, stats)
	return stats, verifyErr
}

func (c *Config) normalize() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.NumSamples <= 0 {
		c.NumSamples = DefaultNumSamples
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = DefaultSettleTimeout
	}
	if c.Mode == "" {
		c.Mode = ModeSamples
	}
	if c.Mode != ModeSamples && c.Mode != ModeScore {
		return fmt.Errorf("%w: mode %q", ErrInvalidConfig, c.Mode)
	}
	if len(c.Mix) == 0 {
		c.Mix = DefaultMix()
	}
	if c.Mix.total() <= 0 {
		return fmt.Errorf("%w: empty mix", ErrInvalidConfig)
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()[:8]
	}
	return nil
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

func summaryWindowFor(n int) time.Duration {
	window := 24 * time.Hour
	if need := time.Duration(n)*time.Second + time.Hour; need > window {
		window = need
	}
	return window
}

// savedSample is the on-disk form, keeping the profile the request body omits.
type savedSample struct {
	Profile Profile `json:"profile"`
	Sample
}

func saveSamples(ctx context.Context, cfg *Config, samples []Sample) error {
	path := cfg.OutputFile
	if path == "" {
		path = "replay_" + cfg.RunID + "_" + time.Now().Format("20060102_150405") + ".json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return err
		}
	}

	out := make([]savedSample, len(samples))
	for i, s := range samples {
		out[i] = savedSample{Profile: s.Profile, Sample: s}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return err
	}
	logger.Get().Info(ctx, "saved generated samples", logger.String("file", path), logger.Int("count", len(out)))
	return nil
}

func displayFinalStats(ctx context.Context, s *Stats) {
	elapsed := s.EndTime.Sub(s.StartTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.Accepted+s.Duplicate) / elapsed.Seconds()
	}
	successPct := 0.0
	if s.Generated > 0 {
		successPct = float64(s.Accepted+s.Duplicate) / float64(s.Generated) * percentageMultiplier
	}
	logger.Get().Info(ctx, "replay finished",
		logger.Int("generated", s.Generated),
		logger.Int("accepted", int(s.Accepted)),
		logger.Int("duplicate", int(s.Duplicate)),
		logger.Int("failed", int(s.Failed)),
		logger.Int("retried", int(s.Retried)),
		logger.Int("mismatched", int(s.Mismatched)),
		logger.Int("baselineCount", s.BaselineCount),
		logger.Int("finalCount", s.FinalCount),
		logger.Any("byProfile", s.ByProfile),
		logger.Float64("successPct", successPct),
		logger.Float64("perSecond", rate),
		logger.String("elapsed", elapsed.String()))
}
