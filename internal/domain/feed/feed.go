// Package feed orders the alert list for side-panel display.
package feed

import (
	"sort"

	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Order returns the feed view of the alert set: active alerts only, newest
// first. Alerts with identical creation timestamps keep their store-returned
// relative order, so the sort must be stable. The input slice is not mutated.
func Order(alerts []model.Alert) []model.Alert {
	out := make([]model.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Active() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
