// Package bus defines the change-notification feed contract between the
// store and the live snapshot controller.
//
// Implementations may use channels or an external broker. The default is an
// in-memory fan-out; a Redis pub/sub implementation lives in the redisbus
// subpackage.
package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/pkg/metrics"
)

// Default bus configuration constants.
const (
	defaultBufferSize = 64
)

// Kind is the change event kind.
type Kind string

// Change event kinds.
const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Change is one change-notification event for a collection. At most one of
// Tourist and Alert is set, matching the collection the change belongs to.
// Delete events may carry no record at all.
type Change struct {
	Collection string         `json:"collection"`
	Kind       Kind           `json:"kind"`
	Tourist    *model.Tourist `json:"tourist,omitempty"`
	Alert      *model.Alert   `json:"alert,omitempty"`
}

// Subscription delivers change events for one collection until unsubscribed.
type Subscription interface {
	// Events returns the channel change events arrive on. The channel is
	// closed after Unsubscribe or when the feed shuts down.
	Events() <-chan Change

	// Unsubscribe tears the subscription down. It is idempotent.
	Unsubscribe()
}

// Feed is the subscribe side of the change-notification feed.
type Feed interface {
	// Subscribe opens a subscription for every event kind on a collection.
	Subscribe(ctx context.Context, collection string) (Subscription, error)
}

// Publisher is the publish side of the change-notification feed.
type Publisher interface {
	// Publish broadcasts a change event. Delivery is best-effort; slow
	// subscribers lose events rather than blocking the publisher.
	Publish(ctx context.Context, c Change)
}

// InMemoryBus implements Feed and Publisher with per-subscription buffered
// channels.
type InMemoryBus struct {
	mu         sync.RWMutex
	subs       map[string]map[string]*memorySubscription // collection -> sub id -> sub
	bufferSize int
	closed     bool
}

// Option applies a configuration option to the InMemoryBus.
type Option func(*InMemoryBus)

// WithBufferSize sets the per-subscription channel buffer.
func WithBufferSize(size int) Option {
	return func(b *InMemoryBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// NewInMemoryBus creates a new in-memory bus with configuration options.
func NewInMemoryBus(opts ...Option) *InMemoryBus {
	b := &InMemoryBus{
		subs:       make(map[string]map[string]*memorySubscription),
		bufferSize: defaultBufferSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe opens a subscription for all event kinds on a collection.
func (b *InMemoryBus) Subscribe(ctx context.Context, collection string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		id:         uuid.NewString(),
		collection: collection,
		ch:         make(chan Change, b.bufferSize),
		bus:        b,
	}
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[string]*memorySubscription)
	}
	b.subs[collection][sub.id] = sub
	metrics.UpdateBusSubscriptions(b.countLocked())
	return sub, nil
}

// Publish broadcasts a change to every subscription on the change's
// collection. Full subscriber buffers drop the event.
func (b *InMemoryBus) Publish(ctx context.Context, c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	metrics.RecordBusPublished(c.Collection)
	for _, sub := range b.subs[c.Collection] {
		select {
		case sub.ch <- c:
		default:
			metrics.RecordBusDropped()
		}
	}
}

// Close shuts the bus down and closes every subscription channel.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, byID := range b.subs {
		for _, sub := range byID {
			sub.closeOnce.Do(func() { close(sub.ch) })
		}
	}
	b.subs = make(map[string]map[string]*memorySubscription)
	metrics.UpdateBusSubscriptions(0)
	return nil
}

// remove detaches a subscription; called from Unsubscribe.
func (b *InMemoryBus) remove(collection, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[collection][id]; ok {
		delete(b.subs[collection], id)
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
	metrics.UpdateBusSubscriptions(b.countLocked())
}

// countLocked counts live subscriptions. Callers must hold mu.
func (b *InMemoryBus) countLocked() int {
	n := 0
	for _, byID := range b.subs {
		n += len(byID)
	}
	return n
}

// memorySubscription is one subscriber's view of the bus.
type memorySubscription struct {
	id         string
	collection string
	ch         chan Change
	bus        *InMemoryBus
	once       sync.Once
	closeOnce  sync.Once
}

// Events returns the delivery channel.
func (s *memorySubscription) Events() <-chan Change {
	return s.ch
}

// Unsubscribe detaches from the bus and closes the delivery channel.
// Safe to call more than once.
func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.collection, s.id)
	})
}
