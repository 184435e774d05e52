// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// Collection names used by the store and the change-notification feed.
const (
	CollectionTourists = "tourists"
	CollectionAlerts   = "alerts"
)

// Severity is the alert severity level.
type Severity string

// Severity levels ordered none < low < medium < high.
const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Rank returns the position of s in the severity total order.
// Unknown severities rank as none.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Worse returns the higher-ranked of s and other.
func (s Severity) Worse(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// AlertKind identifies how an alert was raised.
type AlertKind string

// Alert kinds.
const (
	KindPanic      AlertKind = "panic"
	KindInactivity AlertKind = "inactivity"
)

// Lifecycle statuses.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// Tourist is a registered tourist record. The external identifier is stable
// and immutable once issued; the last-known coordinate is absent until the
// first location report arrives.
type Tourist struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	DocumentID       string    `json:"document_id"`
	EmergencyContact string    `json:"emergency_contact"`
	TripStart        time.Time `json:"trip_start"`
	TripEnd          time.Time `json:"trip_end"`
	Status           string    `json:"status"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Place            string    `json:"place,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Coordinate returns the last-known position and whether it is usable.
// A tourist with no location report yet, or with a non-finite value, has
// no usable coordinate and is excluded from marker placement.
func (t Tourist) Coordinate() (lat, lon float64, ok bool) {
	if t.Latitude == nil || t.Longitude == nil {
		return 0, 0, false
	}
	lat, lon = *t.Latitude, *t.Longitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0, 0, false
	}
	return lat, lon, true
}

// Alert is a safety alert raised upstream for a tourist. This service treats
// alerts as read-only: they are created and resolved by the detection layer.
type Alert struct {
	ID        string    `json:"id"`
	TouristID string    `json:"tourist_id"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Place     string    `json:"place,omitempty"`
	Severity  Severity  `json:"severity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the alert is still open.
func (a Alert) Active() bool {
	return a.Status == StatusActive
}

// AggregatedTourist is a tourist joined with the severity rollup over that
// tourist's currently-active alerts. It is derived, never persisted.
type AggregatedTourist struct {
	Tourist
	HasActiveAlert   bool     `json:"has_active_alert"`
	WorstSeverity    Severity `json:"worst_severity"`
	ActiveAlertCount int      `json:"active_alert_count"`
}

// Snapshot is the pair of collections held by the live snapshot controller
// at one instant. Alerts contains active alerts only.
type Snapshot struct {
	Tourists []Tourist `json:"tourists"`
	Alerts   []Alert   `json:"alerts"`
}
