// Package render owns the rendering surface's marker set. It turns each
// published snapshot into a full create-replace of visual markers plus a
// viewport fit, and routes marker interactions back to a single selection
// callback.
package render

import (
	"context"
	"sync"
	"time"

	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/internal/domain/severity"
	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
)

// ViewportPadding is the margin fraction applied around the marker bounds.
const ViewportPadding = 0.10

// MarkerClass is the visual class of a marker.
type MarkerClass string

// Marker visual classes.
const (
	ClassNeutral  MarkerClass = "neutral"  // no active alert
	ClassWarning  MarkerClass = "warning"  // worst severity low or medium
	ClassCritical MarkerClass = "critical" // worst severity high
)

// Marker is one tourist marker on the surface, including the detail-panel
// payload shown on interaction.
type Marker struct {
	TouristID        string         `json:"tourist_id"`
	Name             string         `json:"name"`
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	Place            string         `json:"place,omitempty"`
	Class            MarkerClass    `json:"class"`
	Pulse            bool           `json:"pulse"`
	WorstSeverity    model.Severity `json:"worst_severity"`
	ActiveAlertCount int            `json:"active_alert_count"`
	EmergencyContact string         `json:"emergency_contact,omitempty"`
}

// Bounds is a geographic bounding region.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Pad expands the bounds by fraction of each dimension's span. A single
// point has zero span and pads to itself.
func (b Bounds) Pad(fraction float64) Bounds {
	latPad := (b.MaxLat - b.MinLat) * fraction
	lonPad := (b.MaxLon - b.MinLon) * fraction
	return Bounds{
		MinLat: b.MinLat - latPad,
		MinLon: b.MinLon - lonPad,
		MaxLat: b.MaxLat + latPad,
		MaxLon: b.MaxLon + lonPad,
	}
}

// Surface is the imperative rendering surface the synchronizer drives. It is
// created once, torn down once, and mutated only through these calls.
type Surface interface {
	// ReplaceMarkers removes every previously-placed marker and places the
	// given set.
	ReplaceMarkers(ctx context.Context, markers []Marker) error

	// FitBounds fits the viewport to the given region.
	FitBounds(ctx context.Context, b Bounds) error
}

// SelectFunc is the external callback invoked when a marker's detail action
// is activated.
type SelectFunc func(tourist model.Tourist)

// Synchronizer performs the full-replace marker cycle on every snapshot.
// It holds exactly one selection binding at a time, replaced on every sync
// so interactions never reach a closure over a previous snapshot.
type Synchronizer struct {
	surface  Surface
	onSelect SelectFunc
	log      logger.Logger

	mu      sync.RWMutex
	binding map[string]model.Tourist // current snapshot's tourists by id
}

// Option applies a configuration option to the Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Synchronizer) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSynchronizer creates a synchronizer over a surface. The selection
// callback is dependency-injected here rather than attached to any shared
// namespace; it may be nil when no detail view is wired.
func NewSynchronizer(surface Surface, onSelect SelectFunc, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		surface:  surface,
		onSelect: onSelect,
		binding:  make(map[string]model.Tourist),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logger.Get().Named("render")
	}
	return s
}

// OnSnapshot implements the snapshot dependent contract.
func (s *Synchronizer) OnSnapshot(ctx context.Context, snap model.Snapshot) {
	if err := s.Sync(ctx, snap); err != nil {
		s.log.Error(ctx, "marker sync failed", logger.Error(err))
		metrics.RecordErrorByComponent("render", "sync")
	}
}

// Sync replaces the marker set and viewport from the snapshot. Calling it
// twice with the same snapshot yields an equivalent marker set and binding;
// nothing accumulates.
func (s *Synchronizer) Sync(ctx context.Context, snap model.Snapshot) error {
	start := time.Now()
	defer func() {
		metrics.RecordMarkerSyncLatency(float64(time.Since(start).Milliseconds()))
	}()

	markers, bounds := s.build(ctx, snap)

	// Replace the selection binding before touching the surface so an
	// interaction racing the sync resolves against the new snapshot.
	binding := make(map[string]model.Tourist, len(snap.Tourists))
	for _, t := range snap.Tourists {
		binding[t.ID] = t
	}
	s.mu.Lock()
	s.binding = binding
	s.mu.Unlock()

	if err := s.surface.ReplaceMarkers(ctx, markers); err != nil {
		return err
	}
	metrics.UpdateMarkersPlaced(len(markers))

	// Viewport stays put when no tourist has a usable coordinate.
	if bounds != nil {
		if err := s.surface.FitBounds(ctx, bounds.Pad(ViewportPadding)); err != nil {
			return err
		}
	}
	return nil
}

// Select routes a marker interaction to the external callback, resolving the
// tourist against the current binding. Unknown identifiers are ignored; they
// belong to markers from a superseded snapshot.
func (s *Synchronizer) Select(touristID string) {
	s.mu.RLock()
	t, ok := s.binding[touristID]
	s.mu.RUnlock()

	if !ok || s.onSelect == nil {
		return
	}
	s.onSelect(t)
}

// build derives the marker set and the covering bounds from the snapshot.
func (s *Synchronizer) build(ctx context.Context, snap model.Snapshot) ([]Marker, *Bounds) {
	for _, orphan := range severity.Orphaned(snap.Tourists, snap.Alerts) {
		s.log.Warn(ctx, "alert references unknown tourist",
			logger.String("alert_id", orphan.ID),
			logger.String("tourist_id", orphan.TouristID),
		)
		metrics.RecordOrphanedAlert()
	}

	views := severity.AggregateAll(snap.Tourists, snap.Alerts)
	markers := make([]Marker, 0, len(views))
	var bounds *Bounds
	for _, v := range views {
		lat, lon, ok := v.Coordinate()
		if !ok {
			// No marker for a tourist without a usable coordinate;
			// every other view still includes them.
			metrics.RecordMalformedCoordinate()
			continue
		}
		markers = append(markers, Marker{
			TouristID:        v.ID,
			Name:             v.Name,
			Latitude:         lat,
			Longitude:        lon,
			Place:            v.Place,
			Class:            classFor(v),
			Pulse:            v.WorstSeverity == model.SeverityHigh,
			WorstSeverity:    v.WorstSeverity,
			ActiveAlertCount: v.ActiveAlertCount,
			EmergencyContact: v.EmergencyContact,
		})
		if bounds == nil {
			bounds = &Bounds{MinLat: lat, MinLon: lon, MaxLat: lat, MaxLon: lon}
			continue
		}
		if lat < bounds.MinLat {
			bounds.MinLat = lat
		}
		if lat > bounds.MaxLat {
			bounds.MaxLat = lat
		}
		if lon < bounds.MinLon {
			bounds.MinLon = lon
		}
		if lon > bounds.MaxLon {
			bounds.MaxLon = lon
		}
	}
	return markers, bounds
}

// classFor maps the severity rollup onto the three visual classes.
func classFor(v model.AggregatedTourist) MarkerClass {
	switch {
	case !v.HasActiveAlert:
		return ClassNeutral
	case v.WorstSeverity == model.SeverityHigh:
		return ClassCritical
	default:
		return ClassWarning
	}
}
