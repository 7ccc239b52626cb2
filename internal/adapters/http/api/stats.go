package api

import (
	"net/http"

	"github.com/okian/sitstraight/internal/domain/posture"
)

// StatsProvider reports service counters for GET /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// scoringReporter is implemented by providers that can show the tunables in
// effect, which change on config reload.
type scoringReporter interface {
	ScoringConfig() posture.Config
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats writes the provider's counters, plus a "scoring" object when the
// provider exposes its scoring config.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := h.provider.GetStats()
	out := make(map[string]interface{}, len(stats)+1)
	for k, v := range stats {
		out[k] = v
	}
	if sr, ok := h.provider.(scoringReporter); ok {
		out["scoring"] = sr.ScoringConfig()
	}
	writeJSON(w, http.StatusOK, out)
}
