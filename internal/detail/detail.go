// Package detail serves per-tourist drill-down views: the full alert
// history, active and resolved, fetched on demand rather than kept live.
package detail

import (
	"context"
	"fmt"
	"time"

	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
)

// Provider loads detail views straight from the store so a drill-down
// always shows the latest history, independent of snapshot refresh timing.
type Provider struct {
	reader store.Reader
	log    logger.Logger
}

// Option applies a configuration option to the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProvider creates a detail provider over a store reader.
func NewProvider(reader store.Reader, opts ...Option) *Provider {
	p := &Provider{reader: reader}

	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	if p.log == nil {
		p.log = logger.Get().Named("detail")
	}
	return p
}

// History returns every alert ever raised for one tourist, newest first.
// A tourist with no alerts yields an empty slice, not an error.
func (p *Provider) History(ctx context.Context, touristID string) ([]model.Alert, error) {
	start := time.Now()
	alerts, err := p.reader.AlertHistory(ctx, touristID)
	if err != nil {
		p.log.Error(ctx, "alert history fetch failed",
			logger.String("tourist_id", touristID),
			logger.Error(err),
		)
		metrics.RecordErrorByComponent("detail", "history_fetch_failed")
		return nil, fmt.Errorf("alert history for %s: %w", touristID, err)
	}

	p.log.Debug(ctx, "alert history fetched",
		logger.String("tourist_id", touristID),
		logger.Int("alerts", len(alerts)),
		logger.Duration("elapsed", time.Since(start)),
	)
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return alerts, nil
}
