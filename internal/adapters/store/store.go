// Package store defines read/write access to the tourist and alert
// collections. The live snapshot controller only reads; the registration
// flow and the upstream detection layer write.
package store

import (
	"context"

	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Reader provides the query side of the store. All listings come back in
// creation-descending order; that store-side ordering is authoritative.
type Reader interface {
	// Tourists returns every tourist, newest first.
	Tourists(ctx context.Context) ([]model.Tourist, error)

	// ActiveAlerts returns alerts with status "active", newest first.
	ActiveAlerts(ctx context.Context) ([]model.Alert, error)

	// AlertHistory returns every alert for one tourist, active and
	// resolved, newest first.
	AlertHistory(ctx context.Context, touristID string) ([]model.Alert, error)
}

// Writer provides the mutation side of the store. Implementations publish a
// change event to the notification feed for every successful write.
type Writer interface {
	// InsertTourist stores a new tourist and returns its identifier.
	// A blank incoming identifier gets one assigned.
	InsertTourist(ctx context.Context, t model.Tourist) (string, error)

	// InsertAlert stores a new alert and returns its store-assigned id.
	InsertAlert(ctx context.Context, a model.Alert) (string, error)

	// UpdateTouristLocation records a tourist's last-known position.
	// Returns ErrNotFound for an unknown tourist.
	UpdateTouristLocation(ctx context.Context, touristID string, lat, lon float64, place string) error

	// ResolveAlert transitions an alert from active to resolved.
	// Returns ErrNotFound for an unknown alert.
	ResolveAlert(ctx context.Context, alertID string) error
}

// Store bundles both sides for single-binary deployments.
type Store interface {
	Reader
	Writer
}
