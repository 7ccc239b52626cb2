package api

import (
	"net/http"
)

type liveResponse struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

// LiveHandler serves the latest result and controls the live loop.
type LiveHandler struct {
	deps LiveController
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(deps LiveController) *LiveHandler {
	return &LiveHandler{deps: deps}
}

// HandleGetLive handles GET /live. It returns the latest metrics from any
// scoring path, or 404 before the first frame.
func (h *LiveHandler) HandleGetLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	m, ok := h.deps.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, ErrNoData)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleStart handles POST /live/start.
func (h *LiveHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	started, err := h.deps.StartLive(r.Context())
	if err != nil {
		writeFailure(w, r, "api.live_start", err)
		return
	}
	writeJSON(w, http.StatusOK, liveResponse{Running: true, Changed: started})
}

// HandleStop handles POST /live/stop.
func (h *LiveHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	stopped, err := h.deps.StopLive()
	if err != nil {
		writeFailure(w, r, "api.live_stop", err)
		return
	}
	writeJSON(w, http.StatusOK, liveResponse{Running: false, Changed: stopped})
}
