// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// Stats is the operational state reported on /stats: which drivers the
// service runs on and the live counts behind the map.
type Stats struct {
	Started        bool   `json:"started"`
	StoreDriver    string `json:"store_driver"`
	FeedDriver     string `json:"feed_driver"`
	State          string `json:"state,omitempty"`
	Ready          bool   `json:"ready"`
	Tourists       int    `json:"tourists"`
	ActiveAlerts   int    `json:"active_alerts"`
	SurfaceClients int    `json:"surface_clients"`
}

// StatsProvider supplies the current operational stats.
type StatsProvider interface {
	Stats() Stats
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.provider.Stats())
}
