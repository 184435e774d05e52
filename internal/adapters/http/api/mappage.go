// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// mapHandler serves the embedded live-map page.
type mapHandler struct{}

// newMapHandler creates a new map page handler.
func newMapHandler() *mapHandler {
	return &mapHandler{}
}

// HandleMapPage handles GET / requests with the embedded map page.
func (h *mapHandler) HandleMapPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, mapFS, "map.html")
}
