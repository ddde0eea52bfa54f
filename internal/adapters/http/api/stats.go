package api

import (
	"context"
	"net/http"

	"github.com/okian/geneva/internal/adapters/repository"
)

// StatsProvider defines the interface for getting record counts.
type StatsProvider interface {
	Stats(ctx context.Context) (repository.Stats, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	responder
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, r responder) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, responder: r}
}

type statsResponse struct {
	Success bool `json:"success"`
	repository.Stats
}

// HandleStats handles GET /api/stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	st, err := h.statsProvider.Stats(r.Context())
	if err != nil {
		h.fail(w, r, op, err, "Failed to retrieve stats")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Stats: st})
}
