// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Snapshot returns the current merged live state and whether the
	// controller has finished its initial load.
	Snapshot(ctx context.Context) (model.Snapshot, bool)

	// Feed returns active alerts ordered newest first.
	Feed(ctx context.Context) []model.Alert

	// Tourists lists every registered tourist, newest first.
	Tourists(ctx context.Context) ([]model.Tourist, error)

	// RegisterTourist stores a new tourist and returns its identifier.
	RegisterTourist(ctx context.Context, t model.Tourist) (string, error)

	// AlertHistory returns one tourist's full alert history, newest first.
	AlertHistory(ctx context.Context, touristID string) ([]model.Alert, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	snapshotHandler *SnapshotHandler
	feedHandler     *FeedHandler
	touristsHandler *TouristsHandler
	historyHandler  *HistoryHandler
	mapHandler      *mapHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		snapshotHandler: NewSnapshotHandler(deps),
		feedHandler:     NewFeedHandler(deps),
		touristsHandler: NewTouristsHandler(deps),
		historyHandler:  NewHistoryHandler(deps),
		mapHandler:      newMapHandler(),
	}
}

// Register attaches all HTTP routes to mux. The websocket surface handler
// is owned by the caller and mounted at /ws.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, surface http.Handler) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/snapshot", MetricsMiddleware(s.snapshotHandler.HandleGetSnapshot, "snapshot"))
	mux.HandleFunc("/feed", MetricsMiddleware(s.feedHandler.HandleGetFeed, "feed"))
	mux.HandleFunc("/tourists", MetricsMiddleware(s.touristsHandler.HandleTourists, "tourists"))
	mux.HandleFunc("/tourists/", MetricsMiddleware(s.historyHandler.HandleGetHistory, "tourist_history"))
	if surface != nil {
		mux.Handle("/ws", surface)
	}
	mux.HandleFunc("/", s.mapHandler.HandleMapPage)
}

// touristRequest mirrors the registration payload for POST /tourists.
type touristRequest struct {
	Name             string   `json:"name"`
	DocumentID       string   `json:"document_id"`
	EmergencyContact string   `json:"emergency_contact"`
	TripStart        string   `json:"trip_start"`
	TripEnd          string   `json:"trip_end"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Place            string   `json:"place"`
}

func (t touristRequest) validate() error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return errors.New("missing name")
	case strings.TrimSpace(t.DocumentID) == "":
		return errors.New("missing document_id")
	}
	if t.TripStart != "" {
		if _, err := time.Parse(time.RFC3339, t.TripStart); err != nil {
			return errors.New("invalid trip_start; must be RFC3339")
		}
	}
	if t.TripEnd != "" {
		if _, err := time.Parse(time.RFC3339, t.TripEnd); err != nil {
			return errors.New("invalid trip_end; must be RFC3339")
		}
	}
	if (t.Latitude == nil) != (t.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	if t.Latitude != nil {
		if math.IsNaN(*t.Latitude) || math.IsInf(*t.Latitude, 0) ||
			math.IsNaN(*t.Longitude) || math.IsInf(*t.Longitude, 0) {
			return errors.New("latitude and longitude must be finite")
		}
	}
	return nil
}

func (t touristRequest) toModel() model.Tourist {
	parse := func(s string) time.Time {
		ts, _ := time.Parse(time.RFC3339, s)
		return ts
	}
	return model.Tourist{
		Name:             strings.TrimSpace(t.Name),
		DocumentID:       strings.TrimSpace(t.DocumentID),
		EmergencyContact: strings.TrimSpace(t.EmergencyContact),
		TripStart:        parse(t.TripStart),
		TripEnd:          parse(t.TripEnd),
		Latitude:         t.Latitude,
		Longitude:        t.Longitude,
		Place:            strings.TrimSpace(t.Place),
	}
}

type registerResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// snapshotResponse wraps the merged live state with its readiness flag.
type snapshotResponse struct {
	State    string          `json:"state"`
	Tourists []model.Tourist `json:"tourists"`
	Alerts   []model.Alert   `json:"alerts"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
