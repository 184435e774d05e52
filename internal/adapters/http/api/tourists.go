// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// TouristDependencies defines the interface for tourist reads and writes.
type TouristDependencies interface {
	Tourists(ctx context.Context) ([]model.Tourist, error)
	RegisterTourist(ctx context.Context, t model.Tourist) (string, error)
}

// TouristsHandler handles tourist collection requests.
type TouristsHandler struct {
	deps TouristDependencies
}

// NewTouristsHandler creates a new tourists handler.
func NewTouristsHandler(deps TouristDependencies) *TouristsHandler {
	return &TouristsHandler{deps: deps}
}

// HandleTourists dispatches /tourists by method: GET lists, POST registers.
func (h *TouristsHandler) HandleTourists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleRegister(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *TouristsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	tourists, err := h.deps.Tourists(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("api.list_tourists: %w", err))
		return
	}
	if tourists == nil {
		tourists = []model.Tourist{}
	}
	writeJSON(w, http.StatusOK, tourists)
}

func (h *TouristsHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_tourist"
	var req touristRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	id, err := h.deps.RegisterTourist(r.Context(), req.toModel())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "conflict", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{ID: id, Status: "registered"})
}
