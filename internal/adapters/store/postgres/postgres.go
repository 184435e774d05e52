// Package postgres provides the PostgreSQL-backed store used in shared
// deployments where registration and alert detection run out of process.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Connection pool constants.
const (
	maxOpenConns    = 25
	maxIdleConns    = 10
	connMaxLifetime = 30 * time.Minute
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db  *sql.DB
	pub bus.Publisher
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithPublisher wires a change-notification publisher; every successful
// write emits a change event for its collection.
func WithPublisher(pub bus.Publisher) Option {
	return func(s *Store) {
		s.pub = pub
	}
}

// Open connects to PostgreSQL with the given DSN and configures the pool.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS tourists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	emergency_contact TEXT NOT NULL DEFAULT '',
	trip_start TIMESTAMPTZ NOT NULL,
	trip_end TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	place TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	tourist_id TEXT NOT NULL REFERENCES tourists(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	place TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS alerts_tourist_idx ON alerts (tourist_id, created_at DESC);
CREATE INDEX IF NOT EXISTS alerts_status_idx ON alerts (status, created_at DESC);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Tourists returns every tourist, newest first.
func (s *Store) Tourists(ctx context.Context) ([]model.Tourist, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, document_id, emergency_contact, trip_start, trip_end,
       status, latitude, longitude, place, created_at
FROM tourists
ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select tourists: %w", err)
	}
	defer rows.Close()

	var out []model.Tourist
	for rows.Next() {
		var t model.Tourist
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Name, &t.DocumentID, &t.EmergencyContact,
			&t.TripStart, &t.TripEnd, &t.Status, &lat, &lon, &t.Place, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tourist: %w", err)
		}
		if lat.Valid && lon.Valid {
			t.Latitude, t.Longitude = &lat.Float64, &lon.Float64
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tourists: %w", err)
	}
	return out, nil
}

// ActiveAlerts returns alerts with status "active", newest first.
func (s *Store) ActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.selectAlerts(ctx, `
SELECT id, tourist_id, kind, message, latitude, longitude, place, severity, status, created_at
FROM alerts
WHERE status = $1
ORDER BY created_at DESC`, model.StatusActive)
}

// AlertHistory returns every alert for one tourist, newest first.
func (s *Store) AlertHistory(ctx context.Context, touristID string) ([]model.Alert, error) {
	return s.selectAlerts(ctx, `
SELECT id, tourist_id, kind, message, latitude, longitude, place, severity, status, created_at
FROM alerts
WHERE tourist_id = $1
ORDER BY created_at DESC`, touristID)
}

func (s *Store) selectAlerts(ctx context.Context, query string, arg any) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.TouristID, &a.Kind, &a.Message,
			&a.Latitude, &a.Longitude, &a.Place, &a.Severity, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// InsertTourist stores a new tourist and returns its identifier.
func (s *Store) InsertTourist(ctx context.Context, t model.Tourist) (string, error) {
	if t.ID == "" {
		t.ID = "TID-" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var lat, lon sql.NullFloat64
	if t.Latitude != nil && t.Longitude != nil {
		lat = sql.NullFloat64{Float64: *t.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: *t.Longitude, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tourists (id, name, document_id, emergency_contact, trip_start, trip_end,
                      status, latitude, longitude, place, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.DocumentID, t.EmergencyContact, t.TripStart, t.TripEnd,
		t.Status, lat, lon, t.Place, t.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert tourist: %w", err)
	}

	s.publish(ctx, bus.Change{Collection: model.CollectionTourists, Kind: bus.KindInsert, Tourist: &t})
	return t.ID, nil
}

// InsertAlert stores a new alert and returns its store-assigned id.
func (s *Store) InsertAlert(ctx context.Context, a model.Alert) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alerts (id, tourist_id, kind, message, latitude, longitude, place, severity, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.TouristID, a.Kind, a.Message, a.Latitude, a.Longitude, a.Place,
		a.Severity, a.Status, a.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert alert: %w", err)
	}

	s.publish(ctx, bus.Change{Collection: model.CollectionAlerts, Kind: bus.KindInsert, Alert: &a})
	return a.ID, nil
}

// UpdateTouristLocation records a tourist's last-known position.
func (s *Store) UpdateTouristLocation(ctx context.Context, touristID string, lat, lon float64, place string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tourists SET latitude = $2, longitude = $3, place = $4 WHERE id = $1`,
		touristID, lat, lon, place)
	if err != nil {
		return fmt.Errorf("update tourist location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	t := model.Tourist{ID: touristID, Latitude: &lat, Longitude: &lon, Place: place}
	s.publish(ctx, bus.Change{Collection: model.CollectionTourists, Kind: bus.KindUpdate, Tourist: &t})
	return nil
}

// ResolveAlert transitions an alert from active to resolved.
func (s *Store) ResolveAlert(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE alerts SET status = $2 WHERE id = $1`, alertID, model.StatusResolved)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	a := model.Alert{ID: alertID, Status: model.StatusResolved}
	s.publish(ctx, bus.Change{Collection: model.CollectionAlerts, Kind: bus.KindUpdate, Alert: &a})
	return nil
}

// publish emits a change event when a publisher is wired.
func (s *Store) publish(ctx context.Context, c bus.Change) {
	if s.pub != nil {
		s.pub.Publish(ctx, c)
	}
}
