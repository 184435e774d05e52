// Package redisbus implements the change-notification feed on Redis pub/sub,
// for deployments where the store and the live map run in separate processes.
package redisbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
)

// Default configuration constants.
const (
	defaultChannelPrefix = "tourwatch:changes:"
	defaultBufferSize    = 64
)

// Bus implements bus.Feed and bus.Publisher over Redis pub/sub. Change
// events are JSON-encoded onto one channel per collection.
type Bus struct {
	client *redis.Client
	prefix string
	buffer int
	log    logger.Logger
}

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithChannelPrefix overrides the pub/sub channel prefix.
func WithChannelPrefix(prefix string) Option {
	return func(b *Bus) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithBufferSize sets the per-subscription delivery buffer.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBus creates a Redis-backed change feed on an existing client.
func NewBus(client *redis.Client, opts ...Option) *Bus {
	b := &Bus{
		client: client,
		prefix: defaultChannelPrefix,
		buffer: defaultBufferSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(b)
	}

	if b.log == nil {
		b.log = logger.Get().Named("redisbus")
	}
	return b
}

// channel returns the pub/sub channel for a collection.
func (b *Bus) channel(collection string) string {
	return b.prefix + collection
}

// Publish broadcasts a change event. Failures are logged, not returned:
// the feed is best-effort by contract and publishers must not block on it.
func (b *Bus) Publish(ctx context.Context, c bus.Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		b.log.Error(ctx, "failed to encode change event", logger.Error(err))
		metrics.RecordErrorByComponent("redisbus", "encode")
		return
	}
	if err := b.client.Publish(ctx, b.channel(c.Collection), payload).Err(); err != nil {
		b.log.Error(ctx, "failed to publish change event",
			logger.String("collection", c.Collection),
			logger.Error(err),
		)
		metrics.RecordErrorByComponent("redisbus", "publish")
		return
	}
	metrics.RecordBusPublished(c.Collection)
}

// Subscribe opens a subscription for all event kinds on a collection.
func (b *Bus) Subscribe(ctx context.Context, collection string) (bus.Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(collection))
	// Force the subscription onto the wire before returning so callers do
	// not miss events published immediately after Subscribe.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &subscription{
		pubsub: ps,
		ch:     make(chan bus.Change, b.buffer),
	}
	go sub.pump(b.log)
	return sub, nil
}

// subscription adapts a redis.PubSub to the bus.Subscription contract.
type subscription struct {
	pubsub *redis.PubSub
	ch     chan bus.Change
	once   sync.Once
}

// pump decodes wire messages into change events until the pubsub closes.
func (s *subscription) pump(log logger.Logger) {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		var c bus.Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			log.Warn(context.Background(), "dropping undecodable change event", logger.Error(err))
			metrics.RecordErrorByComponent("redisbus", "decode")
			continue
		}
		select {
		case s.ch <- c:
		default:
			metrics.RecordBusDropped()
		}
	}
}

// Events returns the delivery channel.
func (s *subscription) Events() <-chan bus.Change {
	return s.ch
}

// Unsubscribe closes the underlying pubsub. Safe to call more than once.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}
