// Package memory provides an in-memory store for tests and single-node
// development deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Store implements store.Store with mutex-guarded maps. All returned slices
// are copies; callers never alias internal state.
type Store struct {
	mu       sync.RWMutex
	tourists map[string]touristEntry
	alerts   map[string]alertEntry
	seq      int64

	pub bus.Publisher
	now func() time.Time
}

type touristEntry struct {
	rec model.Tourist
	seq int64
}

type alertEntry struct {
	rec model.Alert
	seq int64
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

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty in-memory store with configuration options.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tourists: make(map[string]touristEntry),
		alerts:   make(map[string]alertEntry),
		now:      time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Tourists returns every tourist, newest first.
func (s *Store) Tourists(ctx context.Context) ([]model.Tourist, error) {
	s.mu.RLock()
	entries := make([]touristEntry, 0, len(s.tourists))
	for _, e := range s.tourists {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].rec.CreatedAt.Equal(entries[j].rec.CreatedAt) {
			return entries[i].rec.CreatedAt.After(entries[j].rec.CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]model.Tourist, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out, nil
}

// ActiveAlerts returns alerts with status "active", newest first.
func (s *Store) ActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.selectAlerts(func(a model.Alert) bool { return a.Active() }), nil
}

// AlertHistory returns every alert for one tourist, newest first.
func (s *Store) AlertHistory(ctx context.Context, touristID string) ([]model.Alert, error) {
	return s.selectAlerts(func(a model.Alert) bool { return a.TouristID == touristID }), nil
}

// selectAlerts copies matching alerts out, newest first with insertion-order
// tie-break.
func (s *Store) selectAlerts(match func(model.Alert) bool) []model.Alert {
	s.mu.RLock()
	entries := make([]alertEntry, 0, len(s.alerts))
	for _, e := range s.alerts {
		if match(e.rec) {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].rec.CreatedAt.Equal(entries[j].rec.CreatedAt) {
			return entries[i].rec.CreatedAt.After(entries[j].rec.CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]model.Alert, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// InsertTourist stores a new tourist and returns its identifier.
func (s *Store) InsertTourist(ctx context.Context, t model.Tourist) (string, error) {
	s.mu.Lock()
	if t.ID == "" {
		t.ID = "TID-" + uuid.NewString()
	}
	if _, exists := s.tourists[t.ID]; exists {
		s.mu.Unlock()
		return "", store.ErrConflict
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.Status == "" {
		t.Status = model.StatusActive
	}
	s.seq++
	s.tourists[t.ID] = touristEntry{rec: t, seq: s.seq}
	s.mu.Unlock()

	s.publish(ctx, bus.Change{
		Collection: model.CollectionTourists,
		Kind:       bus.KindInsert,
		Tourist:    &t,
	})
	return t.ID, nil
}

// InsertAlert stores a new alert and returns its store-assigned id.
func (s *Store) InsertAlert(ctx context.Context, a model.Alert) (string, error) {
	s.mu.Lock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := s.alerts[a.ID]; exists {
		s.mu.Unlock()
		return "", store.ErrConflict
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.Status == "" {
		a.Status = model.StatusActive
	}
	s.seq++
	s.alerts[a.ID] = alertEntry{rec: a, seq: s.seq}
	s.mu.Unlock()

	s.publish(ctx, bus.Change{
		Collection: model.CollectionAlerts,
		Kind:       bus.KindInsert,
		Alert:      &a,
	})
	return a.ID, nil
}

// UpdateTouristLocation records a tourist's last-known position.
func (s *Store) UpdateTouristLocation(ctx context.Context, touristID string, lat, lon float64, place string) error {
	s.mu.Lock()
	e, ok := s.tourists[touristID]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	e.rec.Latitude = &lat
	e.rec.Longitude = &lon
	e.rec.Place = place
	s.tourists[touristID] = e
	rec := e.rec
	s.mu.Unlock()

	s.publish(ctx, bus.Change{
		Collection: model.CollectionTourists,
		Kind:       bus.KindUpdate,
		Tourist:    &rec,
	})
	return nil
}

// ResolveAlert transitions an alert from active to resolved.
func (s *Store) ResolveAlert(ctx context.Context, alertID string) error {
	s.mu.Lock()
	e, ok := s.alerts[alertID]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	e.rec.Status = model.StatusResolved
	s.alerts[alertID] = e
	rec := e.rec
	s.mu.Unlock()

	s.publish(ctx, bus.Change{
		Collection: model.CollectionAlerts,
		Kind:       bus.KindUpdate,
		Alert:      &rec,
	})
	return nil
}

// publish emits a change event when a publisher is wired.
func (s *Store) publish(ctx context.Context, c bus.Change) {
	if s.pub != nil {
		s.pub.Publish(ctx, c)
	}
}
