// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// FeedDependencies defines the interface for feed reads.
type FeedDependencies interface {
	Feed(ctx context.Context) []model.Alert
}

// FeedHandler handles ordered alert feed requests.
type FeedHandler struct {
	deps FeedDependencies
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies) *FeedHandler {
	return &FeedHandler{deps: deps}
}

// HandleGetFeed handles GET /feed?limit=N requests. Alerts come back
// active-only, newest first; limit is optional and caps the slice.
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	alerts := h.deps.Feed(r.Context())
	if alerts == nil {
		alerts = []model.Alert{}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		if n < len(alerts) {
			alerts = alerts[:n]
		}
	}
	writeJSON(w, http.StatusOK, alerts)
}
