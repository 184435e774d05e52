// Package livemap holds the live snapshot controller: the component that
// turns two unordered change-notification streams into a consistent merged
// snapshot and republishes it to the rendering dependents.
package livemap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
	"github.com/tourwatch/tourwatch/pkg/notify"
)

// State is the controller lifecycle state. Ready is re-entered on every
// update; there is no distinct refreshing state.
type State string

// Controller states.
const (
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Dependent consumes published snapshots. Dependents recompute their derived
// state unconditionally on every publish; the controller never diffs.
type Dependent interface {
	OnSnapshot(ctx context.Context, snap model.Snapshot)
}

// DependentFunc adapts a plain function to the Dependent interface.
type DependentFunc func(ctx context.Context, snap model.Snapshot)

// OnSnapshot calls the wrapped function.
func (f DependentFunc) OnSnapshot(ctx context.Context, snap model.Snapshot) { f(ctx, snap) }

// Controller owns the live snapshot and the two feed subscriptions.
type Controller struct {
	store    store.Reader
	feed     bus.Feed
	notifier notify.Notifier
	log      logger.Logger

	mu             sync.RWMutex
	state          State
	snapshot       model.Snapshot
	touristsLoaded bool
	alertsLoaded   bool
	dependents     []Dependent

	// applyMu serializes snapshot applies and the synchronous publish that
	// follows each one, so racing re-fetches resolve last-write-wins.
	applyMu sync.Mutex

	// alive gates applies; a re-fetch resolving after Stop is discarded.
	alive atomic.Bool

	started    bool
	stopOnce   *sync.Once
	cancel     context.CancelFunc
	touristSub bus.Subscription
	alertSub   bus.Subscription
	wg         sync.WaitGroup
}

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithNotifier sets the transient notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a controller over a store reader and a change feed.
func New(reader store.Reader, feed bus.Feed, opts ...Option) *Controller {
	c := &Controller{
		store:    reader,
		feed:     feed,
		state:    StateLoading,
		stopOnce: &sync.Once{},
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = logger.Get().Named("livemap")
	}
	return c
}

// AddDependent registers a snapshot consumer. Register dependents before
// Start; publishes are not replayed.
func (c *Controller) AddDependent(d Dependent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d != nil {
		c.dependents = append(c.dependents, d)
	}
}

// Start subscribes to both change feeds and issues the two initial fetches.
// The controller is Loading until both complete.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}

	touristSub, err := c.feed.Subscribe(ctx, model.CollectionTourists)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("subscribe tourists: %w", err)
	}
	alertSub, err := c.feed.Subscribe(ctx, model.CollectionAlerts)
	if err != nil {
		touristSub.Unsubscribe()
		c.mu.Unlock()
		return fmt.Errorf("subscribe alerts: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.touristSub = touristSub
	c.alertSub = alertSub
	c.cancel = cancel
	c.started = true
	c.state = StateLoading
	c.touristsLoaded = false
	c.alertsLoaded = false
	c.stopOnce = &sync.Once{}
	c.alive.Store(true)
	c.mu.Unlock()

	c.log.Info(ctx, "starting live snapshot controller")

	// Two independent initial fetches.
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.refetch(runCtx, model.CollectionTourists)
	}()
	go func() {
		defer c.wg.Done()
		c.refetch(runCtx, model.CollectionAlerts)
	}()

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Stop tears the controller down: both feeds are unsubscribed exactly once
// and any re-fetch still in flight is discarded on arrival. Safe to call
// more than once and safe to race with in-flight re-fetches.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	once := c.stopOnce
	c.mu.Unlock()

	once.Do(func() {
		c.alive.Store(false)
		c.mu.Lock()
		cancel := c.cancel
		touristSub, alertSub := c.touristSub, c.alertSub
		c.started = false
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if touristSub != nil {
			touristSub.Unsubscribe()
		}
		if alertSub != nil {
			alertSub.Unsubscribe()
		}
		c.wg.Wait()
		c.log.Info(context.Background(), "live snapshot controller stopped")
	})
}

// State returns the controller lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the current snapshot and whether the controller has
// reached Ready at least once. The slices are shared; callers must treat
// them as read-only.
func (c *Controller) Snapshot() (model.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.state == StateReady
}

// run consumes both subscriptions until teardown. Any notification triggers
// a re-fetch of the affected collection only; alert inserts additionally
// emit a transient announcement.
func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-c.touristSub.Events():
			if !ok {
				return
			}
			c.log.Debug(ctx, "tourist change received", logger.String("kind", string(change.Kind)))
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.refetch(ctx, model.CollectionTourists)
			}()
		case change, ok := <-c.alertSub.Events():
			if !ok {
				return
			}
			c.log.Debug(ctx, "alert change received", logger.String("kind", string(change.Kind)))
			if change.Kind == bus.KindInsert && change.Alert != nil {
				c.announceAlert(ctx, *change.Alert)
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.refetch(ctx, model.CollectionAlerts)
			}()
		}
	}
}

// refetch reloads one collection and applies the result. Failures keep the
// previously-held snapshot; stale-but-present beats empty.
func (c *Controller) refetch(ctx context.Context, collection string) {
	start := time.Now()
	metrics.RecordSnapshotRefresh(collection)

	switch collection {
	case model.CollectionTourists:
		tourists, err := c.store.Tourists(ctx)
		if err != nil {
			c.fetchFailed(ctx, collection, err)
			return
		}
		metrics.RecordSnapshotFetchLatency(float64(time.Since(start).Milliseconds()))
		c.apply(ctx, func() {
			c.snapshot.Tourists = tourists
			c.touristsLoaded = true
		})
	case model.CollectionAlerts:
		alerts, err := c.store.ActiveAlerts(ctx)
		if err != nil {
			c.fetchFailed(ctx, collection, err)
			return
		}
		metrics.RecordSnapshotFetchLatency(float64(time.Since(start).Milliseconds()))
		c.apply(ctx, func() {
			c.snapshot.Alerts = alerts
			c.alertsLoaded = true
		})
	}
}

// apply installs a re-fetch result and synchronously republishes the merged
// snapshot. Applies are serialized: when two re-fetches for one collection
// race, the last to complete wins. Results arriving after Stop are dropped.
func (c *Controller) apply(ctx context.Context, mutate func()) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if !c.alive.Load() {
		// Deactivated while the fetch was in flight; discard.
		return
	}

	c.mu.Lock()
	mutate()
	ready := c.touristsLoaded && c.alertsLoaded
	if ready {
		c.state = StateReady
	}
	snap := c.snapshot
	deps := make([]Dependent, len(c.dependents))
	copy(deps, c.dependents)
	c.mu.Unlock()

	if !ready {
		// Still waiting for the other collection's initial fetch.
		return
	}

	metrics.RecordSnapshotApplied()
	metrics.UpdateSnapshotTourists(len(snap.Tourists))
	metrics.UpdateSnapshotActiveAlerts(len(snap.Alerts))

	for _, d := range deps {
		d.OnSnapshot(ctx, snap)
	}
}

// fetchFailed surfaces a transport error without clearing the snapshot.
// A fetch cut short by teardown is discarded silently; it is not a failure.
func (c *Controller) fetchFailed(ctx context.Context, collection string, err error) {
	if !c.alive.Load() || errors.Is(err, context.Canceled) {
		return
	}
	c.log.Error(ctx, "re-fetch failed",
		logger.String("collection", collection),
		logger.Error(err),
	)
	metrics.RecordSnapshotRefreshError(collection)
	metrics.RecordErrorByComponent("livemap", "fetch_failed")
	c.notify(ctx, notify.Notification{
		Title:   "Live view refresh failed",
		Body:    fmt.Sprintf("could not refresh %s: %v", collection, err),
		Urgency: notify.UrgencyWarning,
	})
}

// announceAlert emits the transient new-alert notification. Fire and forget;
// this is not part of the snapshot.
func (c *Controller) announceAlert(ctx context.Context, a model.Alert) {
	title := "Safety alert"
	switch a.Kind {
	case model.KindPanic:
		title = "Panic alert"
	case model.KindInactivity:
		title = "Inactivity alert"
	}
	body := a.Message
	if a.Place != "" {
		body = fmt.Sprintf("%s near %s", body, a.Place)
	}
	c.notify(ctx, notify.Notification{
		Title:   title,
		Body:    body,
		Urgency: urgencyFor(a.Kind, a.Severity),
	})
}

// urgencyFor derives presentation urgency from an alert's kind and severity.
// Panic alerts and high severity are critical; medium severity warns; the
// rest are informational.
func urgencyFor(kind model.AlertKind, sev model.Severity) notify.Urgency {
	if kind == model.KindPanic || sev == model.SeverityHigh {
		return notify.UrgencyCritical
	}
	if sev == model.SeverityMedium {
		return notify.UrgencyWarning
	}
	return notify.UrgencyInfo
}

// notify delivers to the sink when one is wired.
func (c *Controller) notify(ctx context.Context, n notify.Notification) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, n)
	}
}
