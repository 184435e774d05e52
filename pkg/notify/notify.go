// Package notify delivers transient, fire-and-forget user-facing
// notifications: new-alert announcements and error surfacing. Delivery stops
// at the configured sinks; nothing here is persisted or retried.
package notify

import (
	"context"

	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
)

// Urgency controls how prominently a notification is presented.
type Urgency string

// Urgency levels.
const (
	UrgencyInfo     Urgency = "info"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Notification is one transient user-facing message.
type Notification struct {
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Urgency Urgency `json:"urgency"`
}

// Notifier delivers a notification. Implementations must not block the
// caller beyond a channel send and must never return an error; failed
// delivery of a transient notice is acceptable by contract.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Fanout delivers every notification to all wired sinks.
type Fanout struct {
	sinks []Notifier
}

// NewFanout creates a fanout over the given sinks. Nil sinks are skipped.
func NewFanout(sinks ...Notifier) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify delivers n to every sink.
func (f *Fanout) Notify(ctx context.Context, n Notification) {
	metrics.RecordNotificationEmitted(string(n.Urgency))
	for _, s := range f.sinks {
		s.Notify(ctx, n)
	}
}

// LogNotifier writes notifications to the structured log, so headless
// deployments keep a trace of what operators would have seen.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a log-backed sink.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Get().Named("notify")
	}
	return &LogNotifier{log: log}
}

// Notify writes the notification at a level matching its urgency.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	fields := []logger.Field{
		logger.String("title", n.Title),
		logger.String("body", n.Body),
		logger.String("urgency", string(n.Urgency)),
	}
	switch n.Urgency {
	case UrgencyCritical:
		l.log.Error(ctx, "notification", fields...)
	case UrgencyWarning:
		l.log.Warn(ctx, "notification", fields...)
	default:
		l.log.Info(ctx, "notification", fields...)
	}
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, n Notification)

// Notify calls the wrapped function.
func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }
