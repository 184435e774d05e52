// Package severity computes the per-tourist severity rollup over the
// active alert set.
package severity

import (
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Aggregate is the severity rollup for one tourist.
type Aggregate struct {
	WorstSeverity    model.Severity
	ActiveAlertCount int
}

// Index groups active alerts by owning tourist id. Build it once per snapshot
// so per-tourist aggregation does not rescan the full alert set.
type Index map[string][]model.Alert

// NewIndex builds an Index from the alert set, keeping active alerts only.
func NewIndex(alerts []model.Alert) Index {
	idx := make(Index, len(alerts))
	for _, a := range alerts {
		if !a.Active() {
			continue
		}
		idx[a.TouristID] = append(idx[a.TouristID], a)
	}
	return idx
}

// Aggregate returns the rollup for one tourist. worstSeverity is the maximum
// over that tourist's active alerts under none < low < medium < high; a single
// high alert dominates any number of lower ones.
func (idx Index) Aggregate(touristID string) Aggregate {
	alerts := idx[touristID]
	agg := Aggregate{WorstSeverity: model.SeverityNone}
	for _, a := range alerts {
		agg.ActiveAlertCount++
		agg.WorstSeverity = agg.WorstSeverity.Worse(a.Severity)
	}
	// An active alert with an unknown severity still counts as low.
	if agg.ActiveAlertCount > 0 && agg.WorstSeverity == model.SeverityNone {
		agg.WorstSeverity = model.SeverityLow
	}
	return agg
}

// Compute is the single-shot form of the rollup: it filters alerts to the
// tourist and aggregates them. Prefer an Index when rolling up many tourists
// against the same alert set.
func Compute(touristID string, alerts []model.Alert) Aggregate {
	return NewIndex(alerts).Aggregate(touristID)
}

// AggregateAll joins every tourist with its rollup. The result is recomputed
// from scratch on every snapshot; it is never patched incrementally.
func AggregateAll(tourists []model.Tourist, alerts []model.Alert) []model.AggregatedTourist {
	idx := NewIndex(alerts)
	out := make([]model.AggregatedTourist, len(tourists))
	for i, t := range tourists {
		agg := idx.Aggregate(t.ID)
		out[i] = model.AggregatedTourist{
			Tourist:          t,
			HasActiveAlert:   agg.ActiveAlertCount > 0,
			WorstSeverity:    agg.WorstSeverity,
			ActiveAlertCount: agg.ActiveAlertCount,
		}
	}
	return out
}

// Orphaned returns the active alerts whose tourist reference does not match
// any tourist in the snapshot. They are excluded from marker rendering but
// remain eligible for the feed.
func Orphaned(tourists []model.Tourist, alerts []model.Alert) []model.Alert {
	known := make(map[string]struct{}, len(tourists))
	for _, t := range tourists {
		known[t.ID] = struct{}{}
	}
	var orphans []model.Alert
	for _, a := range alerts {
		if !a.Active() {
			continue
		}
		if _, ok := known[a.TouristID]; !ok {
			orphans = append(orphans, a)
		}
	}
	return orphans
}
