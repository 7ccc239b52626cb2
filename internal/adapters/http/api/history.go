package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/sitstraight/internal/adapters/repository"
)

const defaultSummaryWindow = 24 * time.Hour

type historyResponse struct {
	Count   int                 `json:"count"`
	Samples []repository.Sample `json:"samples"`
}

// HistoryHandler serves recorded samples and their aggregates.
type HistoryHandler struct {
	deps     HistoryReader
	maxLimit int
	now      func() time.Time
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryReader, maxLimit int) *HistoryHandler {
	return &HistoryHandler{deps: deps, maxLimit: maxLimit, now: time.Now}
}

// HandleGetHistory handles GET /history?since=&until=&limit= requests.
// since and until are RFC3339; results are oldest first.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q, err := h.parseQuery(r)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	samples, err := h.deps.History(r.Context(), q)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	if samples == nil {
		samples = []repository.Sample{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Count: len(samples), Samples: samples})
}

// HandleGetSummary handles GET /summary?window=<duration>.
func (h *HistoryHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_summary"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	window, err := parseWindow(r, defaultSummaryWindow)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	sum, err := h.deps.Summary(r.Context(), h.now().Add(-window))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *HistoryHandler) parseQuery(r *http.Request) (repository.Query, error) {
	var q repository.Query
	values := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		raw := values.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return q, fmt.Errorf("%w: %s must be RFC3339", ErrBadRequest, p.key)
		}
		*p.dst = t
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		if n > h.maxLimit {
			return q, fmt.Errorf("%w: limit exceeds %d", ErrBadRequest, h.maxLimit)
		}
		q.Limit = n
	}
	return q, nil
}

func parseWindow(r *http.Request, def time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: window must be a positive duration", ErrBadRequest)
	}
	return d, nil
}
