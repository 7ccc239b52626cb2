package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/sitstraight/internal/domain/model"
	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/metrics"
)

// sampleRequest mirrors the OpenAPI schema for POST /samples.
type sampleRequest struct {
	SampleID  string    `json:"sample_id" validate:"required,max=128,printascii"`
	TS        string    `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Landmarks *pose.Set `json:"landmarks"`
}

func (s sampleRequest) sample() (model.Sample, error) {
	out := model.Sample{SampleID: s.SampleID, Source: model.SourceSamples, Landmarks: s.Landmarks}
	if s.TS != "" {
		ts, err := time.Parse(time.RFC3339Nano, s.TS)
		if err != nil {
			return model.Sample{}, fmt.Errorf("%w: invalid ts; must be RFC3339", ErrBadRequest)
		}
		out.TS = ts
	}
	if s.Landmarks != nil {
		if _, err := s.Landmarks.Require(posture.Required()...); err != nil {
			return model.Sample{}, err
		}
	}
	return out, nil
}

// SamplesHandler handles asynchronous sample ingest.
type SamplesHandler struct {
	deps     Ingestor
	validate *validator.Validate
	maxJSON  int64
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps Ingestor, validate *validator.Validate, maxJSON int64) *SamplesHandler {
	if validate == nil {
		validate = newValidator()
	}
	if maxJSON <= 0 {
		maxJSON = defaultMaxJSONBytes
	}
	return &SamplesHandler{deps: deps, validate: validate, maxJSON: maxJSON}
}

// HandlePostSample handles POST /samples requests.
func (h *SamplesHandler) HandlePostSample(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sample"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req sampleRequest
	if err := decodeJSON(w, r, h.maxJSON, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeFailure(w, r, op, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	sample, err := req.sample()
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}

	if h.deps.SeenAndRecord(r.Context(), sample.SampleID) {
		metrics.RecordSampleDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", SampleID: sample.SampleID, Duplicate: true})
		return
	}

	if ok := h.deps.Enqueue(r.Context(), sample); !ok {
		// Forget the id so the client can retry once the queue drains.
		h.deps.Unrecord(r.Context(), sample.SampleID)
		writeFailure(w, r, op, ErrBackpressure)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", SampleID: sample.SampleID})
}
