package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
)

// HTTPClient wraps http.Client with a base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request against path.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON decodes a 200 response from path into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: GET %s returned %d", ErrUnexpectedCode, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// submitSamples posts samples concurrently and tallies the outcomes into stats.
func submitSamples(ctx context.Context, cfg *Config, client *HTTPClient, samples []Sample, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting samples",
		logger.Int("count", len(samples)),
		logger.Int("workers", cfg.Workers),
		logger.String("mode", string(cfg.Mode)))

	var accepted, duplicate, failed, retried, mismatched, processed int64

	work := make(chan Sample, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				var res outcome
				switch cfg.Mode {
				case ModeScore:
					res = scoreOne(ctx, client, s, &mismatched, cfg.Verbose)
				default:
					res = postOne(ctx, client, s, &retried, cfg.Verbose)
				}
				switch res {
				case outcomeAccepted:
					atomic.AddInt64(&accepted, 1)
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				if n := atomic.AddInt64(&processed, 1); n%progressEvery == 0 {
					log.Info(ctx, "progress",
						logger.Int("processed", int(n)),
						logger.Int("total", len(samples)))
				}
			}
		}()
	}

feed:
	for _, s := range samples {
		select {
		case work <- s:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	stats.Accepted = accepted
	stats.Duplicate = duplicate
	stats.Failed = failed
	stats.Retried = retried
	stats.Mismatched = mismatched
}

// postOne submits to /samples, backing off while the server reports a full queue.
func postOne(ctx context.Context, client *HTTPClient, s Sample, retried *int64, verbose bool) outcome {
	for attempt := 0; ; attempt++ {
		resp, err := client.Post(ctx, "/samples", s)
		if err != nil {
			if verbose {
				logger.Get().Warn(ctx, "submit failed", logger.String("sample_id", s.SampleID), logger.Error(err))
			}
			return outcomeFailed
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			return outcomeAccepted
		case http.StatusOK:
			return outcomeDuplicate
		case http.StatusTooManyRequests:
			if attempt >= maxBackpressureRetries {
				return outcomeFailed
			}
			atomic.AddInt64(retried, 1)
			select {
			case <-time.After(backpressureBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return outcomeFailed
			}
		default:
			if verbose {
				logger.Get().Warn(ctx, "sample rejected",
					logger.String("sample_id", s.SampleID),
					logger.Int("status", resp.StatusCode))
			}
			return outcomeFailed
		}
	}
}

// scoreOne submits to /score and compares the returned state with the profile.
func scoreOne(ctx context.Context, client *HTTPClient, s Sample, mismatched *int64, verbose bool) outcome {
	resp, err := client.Post(ctx, "/score", struct {
		Landmarks *pose.Set `json:"landmarks"`
	}{Landmarks: s.Landmarks})
	if err != nil {
		return outcomeFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if verbose {
			logger.Get().Warn(ctx, "score rejected",
				logger.String("sample_id", s.SampleID),
				logger.Int("status", resp.StatusCode))
		}
		return outcomeFailed
	}
	var m posture.Metrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return outcomeFailed
	}
	if want := s.Profile.Expected(); m.State != want {
		atomic.AddInt64(mismatched, 1)
		if verbose {
			logger.Get().Warn(ctx, "state mismatch",
				logger.String("sample_id", s.SampleID),
				logger.String("profile", string(s.Profile)),
				logger.String("want", string(want)),
				logger.String("got", string(m.State)),
				logger.Int("score", m.Score))
		}
	}
	return outcomeAccepted
}
