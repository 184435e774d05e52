package feed_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tourwatch/tourwatch/internal/domain/feed"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

func TestOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given an empty alert set", t, func() {
		out := feed.Order(nil)

		Convey("Then the feed should be empty but non-nil", func() {
			So(out, ShouldNotBeNil)
			So(len(out), ShouldEqual, 0)
		})
	})

	Convey("Given alerts in arbitrary order with a resolved one mixed in", t, func() {
		alerts := []model.Alert{
			{ID: "old", Status: model.StatusActive, CreatedAt: base},
			{ID: "resolved", Status: model.StatusResolved, CreatedAt: base.Add(3 * time.Minute)},
			{ID: "new", Status: model.StatusActive, CreatedAt: base.Add(2 * time.Minute)},
			{ID: "mid", Status: model.StatusActive, CreatedAt: base.Add(time.Minute)},
		}

		out := feed.Order(alerts)

		Convey("Then resolved alerts should never appear", func() {
			for _, a := range out {
				So(a.Status, ShouldEqual, model.StatusActive)
			}
			So(len(out), ShouldEqual, 3)
		})

		Convey("Then the feed should be newest first", func() {
			So(out[0].ID, ShouldEqual, "new")
			So(out[1].ID, ShouldEqual, "mid")
			So(out[2].ID, ShouldEqual, "old")
		})

		Convey("Then the input slice should be untouched", func() {
			So(alerts[0].ID, ShouldEqual, "old")
			So(alerts[1].ID, ShouldEqual, "resolved")
		})
	})

	Convey("Given alerts with identical creation timestamps", t, func() {
		alerts := []model.Alert{
			{ID: "first", Status: model.StatusActive, CreatedAt: base},
			{ID: "second", Status: model.StatusActive, CreatedAt: base},
			{ID: "third", Status: model.StatusActive, CreatedAt: base},
		}

		out := feed.Order(alerts)

		Convey("Then ties should retain the store-returned relative order", func() {
			So(out[0].ID, ShouldEqual, "first")
			So(out[1].ID, ShouldEqual, "second")
			So(out[2].ID, ShouldEqual, "third")
		})
	})

	Convey("Given a non-increasing property check over a shuffled set", t, func() {
		alerts := []model.Alert{
			{ID: "a", Status: model.StatusActive, CreatedAt: base.Add(5 * time.Minute)},
			{ID: "b", Status: model.StatusActive, CreatedAt: base.Add(9 * time.Minute)},
			{ID: "c", Status: model.StatusActive, CreatedAt: base.Add(1 * time.Minute)},
			{ID: "d", Status: model.StatusActive, CreatedAt: base.Add(7 * time.Minute)},
		}

		out := feed.Order(alerts)

		Convey("Then creation times should be non-increasing", func() {
			for i := 1; i < len(out); i++ {
				So(out[i].CreatedAt.After(out[i-1].CreatedAt), ShouldBeFalse)
			}
		})
	})
}
