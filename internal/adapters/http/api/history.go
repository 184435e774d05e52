// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// HistoryDependencies defines the interface for alert history reads.
type HistoryDependencies interface {
	AlertHistory(ctx context.Context, touristID string) ([]model.Alert, error)
}

// HistoryHandler handles per-tourist alert history requests.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleGetHistory handles GET /tourists/{id}/history requests.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameters after /tourists/
	path := strings.TrimPrefix(r.URL.Path, "/tourists/")
	id, rest, found := strings.Cut(path, "/")
	if !found || id == "" || rest != "history" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	alerts, err := h.deps.AlertHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
