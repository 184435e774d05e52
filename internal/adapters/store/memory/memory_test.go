package memory_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tourwatch/tourwatch/internal/adapters/bus"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/adapters/store/memory"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

func TestInsertAndListTourists(t *testing.T) {
	Convey("Given a store with a fixed clock", t, func() {
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		current := base
		s := memory.NewStore(memory.WithClock(func() time.Time {
			current = current.Add(time.Minute)
			return current
		}))
		ctx := context.Background()

		Convey("When inserting tourists", func() {
			id1, err := s.InsertTourist(ctx, model.Tourist{ID: "TID-001", Name: "Asha"})
			So(err, ShouldBeNil)
			So(id1, ShouldEqual, "TID-001")

			id2, err := s.InsertTourist(ctx, model.Tourist{Name: "Ravi"})
			So(err, ShouldBeNil)
			So(id2, ShouldNotBeEmpty)

			Convey("Then listing should come back newest first", func() {
				tourists, err := s.Tourists(ctx)
				So(err, ShouldBeNil)
				So(len(tourists), ShouldEqual, 2)
				So(tourists[0].ID, ShouldEqual, id2)
				So(tourists[1].ID, ShouldEqual, "TID-001")
			})

			Convey("Then a duplicate identifier should be rejected", func() {
				_, err := s.InsertTourist(ctx, model.Tourist{ID: "TID-001"})
				So(err, ShouldEqual, store.ErrConflict)
			})

			Convey("Then the default lifecycle status should be active", func() {
				tourists, _ := s.Tourists(ctx)
				So(tourists[0].Status, ShouldEqual, model.StatusActive)
			})
		})
	})
}

func TestAlertSelection(t *testing.T) {
	Convey("Given a store with active and resolved alerts", t, func() {
		s := memory.NewStore()
		ctx := context.Background()

		_, err := s.InsertTourist(ctx, model.Tourist{ID: "TID-001"})
		So(err, ShouldBeNil)

		id1, err := s.InsertAlert(ctx, model.Alert{TouristID: "TID-001", Severity: model.SeverityLow})
		So(err, ShouldBeNil)
		id2, err := s.InsertAlert(ctx, model.Alert{TouristID: "TID-001", Severity: model.SeverityHigh})
		So(err, ShouldBeNil)
		_, err = s.InsertAlert(ctx, model.Alert{TouristID: "TID-002", Severity: model.SeverityMedium})
		So(err, ShouldBeNil)

		Convey("When resolving one alert", func() {
			So(s.ResolveAlert(ctx, id1), ShouldBeNil)

			Convey("Then ActiveAlerts should exclude it", func() {
				alerts, err := s.ActiveAlerts(ctx)
				So(err, ShouldBeNil)
				for _, a := range alerts {
					So(a.ID, ShouldNotEqual, id1)
					So(a.Status, ShouldEqual, model.StatusActive)
				}
				So(len(alerts), ShouldEqual, 2)
			})

			Convey("Then AlertHistory should keep the full record for the tourist", func() {
				history, err := s.AlertHistory(ctx, "TID-001")
				So(err, ShouldBeNil)
				So(len(history), ShouldEqual, 2)
				// Newest first.
				So(history[0].ID, ShouldEqual, id2)
				So(history[1].ID, ShouldEqual, id1)
				So(history[1].Status, ShouldEqual, model.StatusResolved)
			})
		})

		Convey("When resolving an unknown alert", func() {
			err := s.ResolveAlert(ctx, "missing")

			Convey("Then it should report not found", func() {
				So(err, ShouldEqual, store.ErrNotFound)
			})
		})
	})
}

func TestLocationUpdate(t *testing.T) {
	Convey("Given a tourist without a location", t, func() {
		s := memory.NewStore()
		ctx := context.Background()
		_, err := s.InsertTourist(ctx, model.Tourist{ID: "TID-001"})
		So(err, ShouldBeNil)

		Convey("When recording a location report", func() {
			err := s.UpdateTouristLocation(ctx, "TID-001", 28.6139, 77.2090, "Connaught Place")
			So(err, ShouldBeNil)

			Convey("Then the tourist should carry the coordinate", func() {
				tourists, _ := s.Tourists(ctx)
				lat, lon, ok := tourists[0].Coordinate()
				So(ok, ShouldBeTrue)
				So(lat, ShouldEqual, 28.6139)
				So(lon, ShouldEqual, 77.2090)
				So(tourists[0].Place, ShouldEqual, "Connaught Place")
			})
		})

		Convey("When updating an unknown tourist", func() {
			err := s.UpdateTouristLocation(ctx, "TID-404", 1, 1, "")

			Convey("Then it should report not found", func() {
				So(err, ShouldEqual, store.ErrNotFound)
			})
		})
	})
}

func TestWritesPublishChanges(t *testing.T) {
	Convey("Given a store wired to an in-memory bus", t, func() {
		b := bus.NewInMemoryBus()
		defer func() { _ = b.Close() }()
		s := memory.NewStore(memory.WithPublisher(b))
		ctx := context.Background()

		alertSub, err := b.Subscribe(ctx, model.CollectionAlerts)
		So(err, ShouldBeNil)
		touristSub, err := b.Subscribe(ctx, model.CollectionTourists)
		So(err, ShouldBeNil)

		Convey("When inserting a tourist and an alert", func() {
			_, err := s.InsertTourist(ctx, model.Tourist{ID: "TID-001"})
			So(err, ShouldBeNil)
			alertID, err := s.InsertAlert(ctx, model.Alert{TouristID: "TID-001", Severity: model.SeverityHigh})
			So(err, ShouldBeNil)

			Convey("Then both collections should see an insert event", func() {
				select {
				case c := <-touristSub.Events():
					So(c.Kind, ShouldEqual, bus.KindInsert)
					So(c.Tourist.ID, ShouldEqual, "TID-001")
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for tourist change")
				}
				select {
				case c := <-alertSub.Events():
					So(c.Kind, ShouldEqual, bus.KindInsert)
					So(c.Alert.ID, ShouldEqual, alertID)
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for alert change")
				}
			})

			Convey("And resolving the alert should publish an update event", func() {
				<-alertSub.Events() // drain the insert
				So(s.ResolveAlert(ctx, alertID), ShouldBeNil)
				select {
				case c := <-alertSub.Events():
					So(c.Kind, ShouldEqual, bus.KindUpdate)
					So(c.Alert.Status, ShouldEqual, model.StatusResolved)
				case <-time.After(time.Second):
					t.Fatal("timed out waiting for alert update")
				}
			})
		})
	})
}
