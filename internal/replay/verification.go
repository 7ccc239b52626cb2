package replay

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/okian/sitstraight/pkg/logger"
)

func fetchSummary(ctx context.Context, client *HTTPClient, window time.Duration) (SummaryResponse, error) {
	var sum SummaryResponse
	err := client.getJSON(ctx, "/summary?window="+url.QueryEscape(window.String()), &sum)
	return sum, err
}

// waitForRecorded polls /summary until it counts at least want samples.
// Accepted samples are scored asynchronously, so the count trails the acks.
func waitForRecorded(ctx context.Context, client *HTTPClient, window time.Duration, want int, settle time.Duration) (int, error) {
	logger.Get().Info(ctx, "waiting for samples to be recorded", logger.Int("want", want))

	deadline := time.Now().Add(settle)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	got := -1
	for {
		sum, err := fetchSummary(ctx, client, window)
		if err == nil {
			got = sum.Count
			if got >= want {
				logger.Get().Info(ctx, "all samples recorded",
					logger.Int("count", got),
					logger.Float64("alignedRatio", sum.AlignedRatio),
					logger.Float64("meanScore", sum.MeanScore))
				return got, nil
			}
		} else {
			logger.Get().Warn(ctx, "summary poll failed", logger.Error(err))
		}
		if time.Now().After(deadline) {
			return got, fmt.Errorf("%w: want %d, got %d", ErrCountMismatch, want, got)
		}
		select {
		case <-ctx.Done():
			return got, ctx.Err()
		case <-ticker.C:
		}
	}
}
