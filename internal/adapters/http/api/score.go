package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/imaging"
)

// multipartOverhead leaves room for form boundaries around the frame part.
const multipartOverhead = 64 << 10

// scoreRequest is the body of POST /score. A null or absent landmarks field means nobody is in view.
type scoreRequest struct {
	Landmarks *pose.Set `json:"landmarks"`
}

// ScoreHandler serves the synchronous single-frame paths.
type ScoreHandler struct {
	deps     FrameScorer
	maxBytes int64
	maxJSON  int64
}

// NewScoreHandler creates a new score handler. maxBytes caps frame uploads
// and maxJSON caps landmark bodies.
func NewScoreHandler(deps FrameScorer, maxBytes, maxJSON int64) *ScoreHandler {
	if maxJSON <= 0 {
		maxJSON = defaultMaxJSONBytes
	}
	return &ScoreHandler{deps: deps, maxBytes: maxBytes, maxJSON: maxJSON}
}

// HandleScore handles POST /score with a landmark set.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scoreRequest
	if err := decodeJSON(w, r, h.maxJSON, &req); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	m, err := h.deps.ScoreLandmarks(r.Context(), req.Landmarks)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleProcess handles POST /process with an encoded frame, either as the
// raw body or as the "frame" part of a multipart form.
func (h *ScoreHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	const op = "api.process"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	frame, err := h.readFrame(w, r)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	m, err := h.deps.ProcessFrame(r.Context(), frame)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ScoreHandler) readFrame(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return imaging.ReadLimited(r.Body, h.maxBytes)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &imaging.DecodeError{Err: imaging.ErrTooLarge}
		}
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	file, _, err := r.FormFile("frame")
	if err != nil {
		return nil, fmt.Errorf("%w: missing frame part: %w", ErrBadRequest, err)
	}
	defer func() { _ = file.Close() }()
	return imaging.ReadLimited(file, h.maxBytes)
}
