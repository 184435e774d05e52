// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/internal/adapters/bus/redisbus"
	"github.com/tourwatch/tourwatch/internal/adapters/http/api"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/adapters/store/memory"
	"github.com/tourwatch/tourwatch/internal/adapters/store/postgres"
	"github.com/tourwatch/tourwatch/internal/config"
	"github.com/tourwatch/tourwatch/internal/detail"
	"github.com/tourwatch/tourwatch/internal/domain/feed"
	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/internal/livemap"
	"github.com/tourwatch/tourwatch/internal/render"
	"github.com/tourwatch/tourwatch/internal/render/wsmap"
	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
	"github.com/tourwatch/tourwatch/pkg/notify"
)

// changeBus is the combined contract the service needs from a bus
// implementation: stores publish into it, the controller subscribes.
type changeBus interface {
	bus.Feed
	bus.Publisher
}

// Service assembles the live map pipeline: store writes publish change
// events, the controller re-fetches and merges, and the synchronizer and
// feed push the result out through the websocket surface.
type Service struct {
	mu sync.RWMutex

	// Core components
	cfg        *config.Config
	store      store.Store
	changeBus  changeBus
	controller *livemap.Controller
	sync       *render.Synchronizer
	hub        *wsmap.Hub
	detail     *detail.Provider
	notifier   notify.Notifier

	// External clients owned by the service
	redisClient *redis.Client

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the service configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithStore injects a prebuilt store, overriding the configured driver.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithBus injects a prebuilt change bus, overriding the configured driver.
func WithBus(b changeBus) Option {
	return func(s *Service) {
		s.changeBus = b
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(context.Background()),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting live map service...")

	if err := s.buildBus(ctx); err != nil {
		return err
	}
	if err := s.buildStore(ctx); err != nil {
		return err
	}

	s.hub = wsmap.NewHub(
		wsmap.WithSendBuffer(s.cfg.SurfaceSendBuffer),
		wsmap.WithSelectHandler(s.onSelect),
		wsmap.WithLogger(s.logger.Named("wsmap")),
	)

	s.detail = detail.NewProvider(s.store, detail.WithLogger(s.logger.Named("detail")))

	// Selecting a marker resolves via the sync binding, fetches that
	// tourist's alert history point-in-time, and pushes both to the surface.
	s.sync = render.NewSynchronizer(s.hub, func(t model.Tourist) {
		ctx := context.Background()
		history, err := s.detail.History(ctx, t.ID)
		if err != nil {
			history = nil
		}
		s.hub.PublishDetail(ctx, t, history)
	}, render.WithLogger(s.logger.Named("render")))

	// Announcements reach both the surface and the log.
	s.notifier = notify.NewFanout(
		notify.NewLogNotifier(s.logger.Named("notify")),
		s.hub,
	)

	s.controller = livemap.New(s.store, s.changeBus,
		livemap.WithNotifier(s.notifier),
		livemap.WithLogger(s.logger.Named("livemap")),
	)
	s.controller.AddDependent(s.sync)
	s.controller.AddDependent(livemap.DependentFunc(s.publishFeed))

	if err := s.controller.Start(ctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "live map service started",
		logger.String("store", s.cfg.StoreDriver),
		logger.String("feed", s.cfg.FeedDriver),
	)
	return nil
}

func (s *Service) buildBus(ctx context.Context) error {
	if s.changeBus != nil {
		return nil
	}
	switch s.cfg.FeedDriver {
	case config.FeedRedis:
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		s.changeBus = redisbus.NewBus(s.redisClient,
			redisbus.WithChannelPrefix(s.cfg.ChannelPrefix),
			redisbus.WithBufferSize(s.cfg.BusBuffer),
			redisbus.WithLogger(s.logger.Named("redisbus")),
		)
		s.logger.Info(ctx, "using redis change feed", logger.String("addr", s.cfg.RedisAddr))
	default:
		s.changeBus = bus.NewInMemoryBus(bus.WithBufferSize(s.cfg.BusBuffer))
		s.logger.Info(ctx, "using in-memory change feed")
	}
	return nil
}

func (s *Service) buildStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	switch s.cfg.StoreDriver {
	case config.StorePostgres:
		st, err := postgres.Open(s.cfg.PostgresDSN, postgres.WithPublisher(s.changeBus))
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		s.store = st
		s.logger.Info(ctx, "using postgres store")
	default:
		s.store = memory.NewStore(memory.WithPublisher(s.changeBus))
		s.logger.Info(ctx, "using in-memory store")
	}
	return nil
}

// publishFeed pushes the ordered active-alert feed on every snapshot.
func (s *Service) publishFeed(ctx context.Context, snap model.Snapshot) {
	ordered := feed.Order(snap.Alerts)
	metrics.UpdateFeedDepth(len(ordered))
	s.hub.PublishFeed(ctx, ordered)
}

// onSelect resolves a surface selection through the sync binding.
func (s *Service) onSelect(touristID string) {
	s.mu.RLock()
	sy := s.sync
	s.mu.RUnlock()
	if sy != nil {
		sy.Select(touristID)
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping live map service...")

	if s.controller != nil {
		s.controller.Stop()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if b, ok := s.changeBus.(*bus.InMemoryBus); ok {
		b.Close()
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}

	s.started = false
	s.logger.Info(ctx, "live map service stopped")
}

// SurfaceHandler exposes the websocket endpoint for route registration.
func (s *Service) SurfaceHandler() http.Handler {
	return s.hub
}

// Snapshot returns the current merged live state and its readiness.
func (s *Service) Snapshot(_ context.Context) (model.Snapshot, bool) {
	return s.controller.Snapshot()
}

// Feed returns active alerts ordered newest first, derived from the
// current snapshot.
func (s *Service) Feed(_ context.Context) []model.Alert {
	snap, _ := s.controller.Snapshot()
	return feed.Order(snap.Alerts)
}

// Tourists lists every registered tourist, newest first.
func (s *Service) Tourists(ctx context.Context) ([]model.Tourist, error) {
	tourists, err := s.store.Tourists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tourists: %w", err)
	}
	return tourists, nil
}

// RegisterTourist stores a new tourist; the resulting change event flows
// back through the bus and refreshes the snapshot.
func (s *Service) RegisterTourist(ctx context.Context, t model.Tourist) (string, error) {
	id, err := s.store.InsertTourist(ctx, t)
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "tourist registered",
		logger.String("id", id),
		logger.String("name", t.Name),
	)
	return id, nil
}

// AlertHistory returns one tourist's full alert history, newest first.
func (s *Service) AlertHistory(ctx context.Context, touristID string) ([]model.Alert, error) {
	return s.detail.History(ctx, touristID)
}

// Stats reports the service's operational state for the /stats endpoint
// and the periodic metrics updater.
func (s *Service) Stats() api.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := api.Stats{
		Started:     s.started,
		StoreDriver: s.cfg.StoreDriver,
		FeedDriver:  s.cfg.FeedDriver,
	}
	if !s.started {
		return stats
	}

	snap, ready := s.controller.Snapshot()
	stats.State = string(s.controller.State())
	stats.Ready = ready
	stats.Tourists = len(snap.Tourists)
	stats.ActiveAlerts = len(snap.Alerts)
	stats.SurfaceClients = s.hub.ClientCount()
	return stats
}
