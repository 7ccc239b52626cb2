// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/sitstraight/internal/adapters/repository"
	"github.com/okian/sitstraight/internal/domain/dedupe"
	"github.com/okian/sitstraight/internal/domain/model"
	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
)

// FrameScorer scores one frame synchronously and records the result.
type FrameScorer interface {
	ScoreLandmarks(ctx context.Context, set *pose.Set) (posture.Metrics, error)
	ProcessFrame(ctx context.Context, frame []byte) (posture.Metrics, error)
}

// Ingestor accepts samples for asynchronous scoring.
type Ingestor interface {
	dedupe.Deduper

	// Enqueue pushes a sample for async processing. Returns false on backpressure.
	Enqueue(ctx context.Context, s model.Sample) bool
}

// LiveController exposes the live loop and the most recent result from any path.
type LiveController interface {
	Latest() (posture.Metrics, bool)

	// StartLive reports whether a loop was started. The loop outlives ctx.
	StartLive(ctx context.Context) (bool, error)
	StopLive() (bool, error)
}

// HistoryReader reads recorded samples.
type HistoryReader interface {
	History(ctx context.Context, q repository.Query) ([]repository.Sample, error)
	Summary(ctx context.Context, since time.Time) (repository.Summary, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	FrameScorer
	Ingestor
	LiveController
	HistoryReader
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	scoreHandler   *ScoreHandler
	samplesHandler *SamplesHandler
	liveHandler    *LiveHandler
	historyHandler *HistoryHandler
	chartHandler   *ChartHandler

	stream  http.Handler
	limiter *RateLimiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		scoreHandler:   NewScoreHandler(deps, o.maxUploadBytes, o.maxJSONBytes),
		samplesHandler: NewSamplesHandler(deps, o.validate, o.maxJSONBytes),
		liveHandler:    NewLiveHandler(deps),
		historyHandler: NewHistoryHandler(deps, o.maxHistoryLimit),
		chartHandler:   NewChartHandler(deps),
		stream:         o.stream,
		limiter:        NewRateLimiter(o.rateLimit, o.rateBurst),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/score", MetricsMiddleware(s.limiter.Wrap(s.scoreHandler.HandleScore, "score"), "score"))
	mux.HandleFunc("/process", MetricsMiddleware(s.limiter.Wrap(s.scoreHandler.HandleProcess, "process"), "process"))
	mux.HandleFunc("/samples", MetricsMiddleware(s.samplesHandler.HandlePostSample, "samples"))
	mux.HandleFunc("/live", MetricsMiddleware(s.liveHandler.HandleGetLive, "live"))
	mux.HandleFunc("/live/start", MetricsMiddleware(s.liveHandler.HandleStart, "live_start"))
	mux.HandleFunc("/live/stop", MetricsMiddleware(s.liveHandler.HandleStop, "live_stop"))
	mux.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
	mux.HandleFunc("/summary", MetricsMiddleware(s.historyHandler.HandleGetSummary, "summary"))
	mux.HandleFunc("/chart", MetricsMiddleware(s.chartHandler.HandleChart, "chart"))
	if s.stream != nil {
		mux.Handle("/ws", s.stream)
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	SampleID  string `json:"sample_id"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeJSON reads a capped JSON body into dst. Landmark parse errors pass
// through; other failures wrap ErrBadRequest or ErrBodyTooLarge.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	var tooBig *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &tooBig):
		return fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, tooBig.Limit)
	case errors.Is(err, pose.ErrMalformedLandmarks), errors.Is(err, pose.ErrUnknownLandmark):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err, logs server-side failures and writes the response.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(r.Context(), op+" failed",
			logger.String("request_id", RequestIDFrom(r.Context())), logger.Error(err))
	}
	writeError(w, status, code, err)
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
