// Command seed inserts sample tourists and alerts through the store write
// path. Against the postgres store (with the redis feed configured) a
// running service picks the changes up live; against the in-memory store
// it is a dry run of the write path.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/internal/adapters/bus/redisbus"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/adapters/store/memory"
	"github.com/tourwatch/tourwatch/internal/adapters/store/postgres"
	"github.com/tourwatch/tourwatch/internal/config"
	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/pkg/logger"
)

const seedTimeout = 30 * time.Second

var names = []string{
	"Ana Souza", "Bruno Lima", "Carla Mendes", "Diego Ramos", "Elena Costa",
	"Felipe Torres", "Gabriela Nunes", "Hugo Alves", "Iris Campos", "João Pereira",
}

var places = []string{
	"Old Town Square", "Harbor Walk", "Cathedral Plaza", "Riverside Market",
	"Botanical Garden", "Museum District", "Hilltop Viewpoint", "Beach Promenade",
}

var alertMessages = map[model.AlertKind][]string{
	model.KindPanic:      {"Panic button pressed", "SOS triggered from mobile app"},
	model.KindInactivity: {"No location update for 30 minutes", "Device unreachable for 1 hour"},
}

func main() {
	var (
		numTourists = flag.Int("tourists", 8, "Number of tourists to insert")
		numAlerts   = flag.Int("alerts", 4, "Number of alerts to raise")
		centerLat   = flag.Float64("lat", -3.1019, "Center latitude for generated positions")
		centerLon   = flag.Float64("lon", -60.0250, "Center longitude for generated positions")
		spread      = flag.Float64("spread", 0.05, "Degrees of random spread around the center")
		randSeed    = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Parse()

	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get().Named("seed")

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	st, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		os.Stderr.WriteString("failed to open store: " + err.Error() + "\n")
		return
	}
	defer cleanup()

	rng := rand.New(rand.NewSource(*randSeed))

	ids, err := seedTourists(ctx, st, rng, *numTourists, *centerLat, *centerLon, *spread)
	if err != nil {
		log.Error(ctx, "seeding tourists failed", logger.Error(err))
		return
	}
	log.Info(ctx, "tourists inserted", logger.Int("count", len(ids)))

	if err := seedAlerts(ctx, st, rng, ids, *numAlerts, *centerLat, *centerLon, *spread); err != nil {
		log.Error(ctx, "seeding alerts failed", logger.Error(err))
		return
	}
	log.Info(ctx, "alerts raised", logger.Int("count", *numAlerts))
}

// buildStore wires the configured store and, when redis is configured, a
// publisher so a running service sees the seeded changes.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, func(), error) {
	var pub bus.Publisher
	cleanup := func() {}

	if cfg.FeedDriver == config.FeedRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		pub = redisbus.NewBus(client, redisbus.WithChannelPrefix(cfg.ChannelPrefix))
		cleanup = func() { _ = client.Close() }
	}

	if cfg.StoreDriver == config.StorePostgres {
		var opts []postgres.Option
		if pub != nil {
			opts = append(opts, postgres.WithPublisher(pub))
		}
		st, err := postgres.Open(cfg.PostgresDSN, opts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		pgCleanup := cleanup
		return st, func() { _ = st.Close(); pgCleanup() }, nil
	}

	log.Warn(ctx, "in-memory store configured; seeded data is not visible to a separate service process")
	var opts []memory.Option
	if pub != nil {
		opts = append(opts, memory.WithPublisher(pub))
	}
	return memory.NewStore(opts...), cleanup, nil
}

func seedTourists(ctx context.Context, st store.Store, rng *rand.Rand, n int, lat, lon, spread float64) ([]string, error) {
	ids := make([]string, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		tLat := lat + (rng.Float64()*2-1)*spread
		tLon := lon + (rng.Float64()*2-1)*spread
		t := model.Tourist{
			Name:             names[i%len(names)],
			DocumentID:       fmt.Sprintf("DOC-%04d", rng.Intn(10000)),
			EmergencyContact: fmt.Sprintf("+55 11 9%04d-%04d", rng.Intn(10000), rng.Intn(10000)),
			TripStart:        now.AddDate(0, 0, -rng.Intn(5)),
			TripEnd:          now.AddDate(0, 0, 1+rng.Intn(10)),
			Latitude:         &tLat,
			Longitude:        &tLon,
			Place:            places[rng.Intn(len(places))],
		}
		id, err := st.InsertTourist(ctx, t)
		if err != nil {
			return ids, fmt.Errorf("insert tourist %q: %w", t.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedAlerts(ctx context.Context, st store.Store, rng *rand.Rand, touristIDs []string, n int, lat, lon, spread float64) error {
	if len(touristIDs) == 0 {
		return nil
	}
	kinds := []model.AlertKind{model.KindPanic, model.KindInactivity}
	severities := []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh}
	for i := 0; i < n; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		msgs := alertMessages[kind]
		a := model.Alert{
			TouristID: touristIDs[rng.Intn(len(touristIDs))],
			Kind:      kind,
			Message:   msgs[rng.Intn(len(msgs))],
			Latitude:  lat + (rng.Float64()*2-1)*spread,
			Longitude: lon + (rng.Float64()*2-1)*spread,
			Place:     places[rng.Intn(len(places))],
			Severity:  severities[rng.Intn(len(severities))],
		}
		if _, err := st.InsertAlert(ctx, a); err != nil {
			return fmt.Errorf("insert alert for %s: %w", a.TouristID, err)
		}
	}
	return nil
}
