// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// SnapshotDependencies defines the interface for snapshot reads.
type SnapshotDependencies interface {
	Snapshot(ctx context.Context) (model.Snapshot, bool)
}

// SnapshotHandler handles merged live-state requests.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleGetSnapshot handles GET /snapshot requests. While the initial load
// is still in flight the state field reads "loading" and both collections
// are empty.
func (h *SnapshotHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	snap, ready := h.deps.Snapshot(r.Context())
	state := "loading"
	if ready {
		state = "ready"
	}
	resp := snapshotResponse{State: state, Tourists: snap.Tourists, Alerts: snap.Alerts}
	if resp.Tourists == nil {
		resp.Tourists = []model.Tourist{}
	}
	if resp.Alerts == nil {
		resp.Alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, resp)
}
