package wsmap

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/internal/render"
	"github.com/tourwatch/tourwatch/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// readFrame reads frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if f.Type == wantType {
			return f
		}
	}
	t.Fatalf("no %q frame before deadline", wantType)
	return frame{}
}

func TestHubBroadcast(t *testing.T) {
	Convey("Given a hub with one connected client", t, func() {
		hub := NewHub()
		defer hub.Close()
		srv := httptest.NewServer(hub)
		defer srv.Close()

		conn := dial(t, srv)
		defer conn.Close()

		waitClients := func(n int) bool {
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if hub.ClientCount() == n {
					return true
				}
				time.Sleep(5 * time.Millisecond)
			}
			return false
		}
		So(waitClients(1), ShouldBeTrue)

		Convey("When markers are replaced", func() {
			markers := []render.Marker{
				{TouristID: "TID-1", Name: "Ana", Latitude: -3.1, Longitude: -60.0, Class: render.ClassCritical, Pulse: true},
			}
			So(hub.ReplaceMarkers(context.Background(), markers), ShouldBeNil)

			f := readFrame(t, conn, FrameMarkers)
			So(f.Markers, ShouldHaveLength, 1)
			So(f.Markers[0].TouristID, ShouldEqual, "TID-1")
			So(f.Markers[0].Pulse, ShouldBeTrue)

			Convey("And a late-joining client receives the current set", func() {
				late := dial(t, srv)
				defer late.Close()

				f := readFrame(t, late, FrameMarkers)
				So(f.Markers, ShouldHaveLength, 1)
				So(f.Markers[0].TouristID, ShouldEqual, "TID-1")
			})
		})

		Convey("When the viewport is fitted", func() {
			b := render.Bounds{MinLat: -4, MinLon: -61, MaxLat: -3, MaxLon: -60}
			So(hub.FitBounds(context.Background(), b), ShouldBeNil)

			f := readFrame(t, conn, FrameViewport)
			So(f.Bounds, ShouldNotBeNil)
			So(f.Bounds.MinLat, ShouldEqual, -4)
			So(f.Bounds.MaxLon, ShouldEqual, -60)
		})

		Convey("When a tourist detail is published", func() {
			hub.PublishDetail(context.Background(), model.Tourist{ID: "TID-1", Name: "Ana"}, []model.Alert{
				{ID: "a1", TouristID: "TID-1", Status: model.StatusResolved},
			})

			f := readFrame(t, conn, FrameDetail)
			So(f.Detail, ShouldNotBeNil)
			So(f.Detail.Name, ShouldEqual, "Ana")
			So(f.History, ShouldHaveLength, 1)
		})

		Convey("When the feed is published", func() {
			hub.PublishFeed(context.Background(), []model.Alert{
				{ID: "a1", TouristID: "TID-1", Severity: model.SeverityHigh, Status: model.StatusActive},
			})

			f := readFrame(t, conn, FrameFeed)
			So(f.Feed, ShouldHaveLength, 1)
			So(f.Feed[0].ID, ShouldEqual, "a1")
		})
	})
}

func TestHubSelect(t *testing.T) {
	Convey("Given a hub with a select handler", t, func() {
		var mu sync.Mutex
		var selected []string
		hub := NewHub(WithSelectHandler(func(id string) {
			mu.Lock()
			defer mu.Unlock()
			selected = append(selected, id)
		}))
		defer hub.Close()
		srv := httptest.NewServer(hub)
		defer srv.Close()

		conn := dial(t, srv)
		defer conn.Close()

		Convey("When a client sends a select message", func() {
			err := conn.WriteJSON(map[string]string{"type": "select", "tourist_id": "TID-7"})
			So(err, ShouldBeNil)

			got := func() []string {
				mu.Lock()
				defer mu.Unlock()
				out := make([]string, len(selected))
				copy(out, selected)
				return out
			}
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) && len(got()) == 0 {
				time.Sleep(5 * time.Millisecond)
			}
			So(got(), ShouldResemble, []string{"TID-7"})
		})

		Convey("When a client sends garbage the connection survives", func() {
			err := conn.WriteMessage(websocket.TextMessage, []byte("not json"))
			So(err, ShouldBeNil)

			err = conn.WriteJSON(map[string]string{"type": "select", "tourist_id": "TID-8"})
			So(err, ShouldBeNil)

			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				mu.Lock()
				n := len(selected)
				mu.Unlock()
				if n > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			mu.Lock()
			So(selected, ShouldContain, "TID-8")
			mu.Unlock()
		})
	})
}

func TestHubClose(t *testing.T) {
	Convey("Given a hub with a client", t, func() {
		hub := NewHub()
		srv := httptest.NewServer(hub)
		defer srv.Close()

		conn := dial(t, srv)
		defer conn.Close()

		Convey("When the hub closes", func() {
			hub.Close()
			So(hub.ClientCount(), ShouldEqual, 0)

			Convey("Then closing again is a no-op", func() {
				So(hub.Close, ShouldNotPanic)
			})
		})
	})
}

func TestHubCloseDuringConnect(t *testing.T) {
	Convey("Given a hub with retained state under connection churn", t, func() {
		ctx := context.Background()
		hub := NewHub()
		So(hub.ReplaceMarkers(ctx, []render.Marker{{TouristID: "TID-1", Name: "Ana"}}), ShouldBeNil)
		hub.PublishFeed(ctx, []model.Alert{{ID: "a1", Status: model.StatusActive}})

		srv := httptest.NewServer(hub)
		defer srv.Close()
		url := "ws" + strings.TrimPrefix(srv.URL, "http")

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conn, _, err := websocket.DefaultDialer.Dial(url, nil)
				if err != nil {
					return
				}
				conn.Close()
			}()
		}
		hub.Close()
		wg.Wait()

		Convey("Then the hub shuts down with no clients attached", func() {
			So(hub.ClientCount(), ShouldEqual, 0)
		})
	})
}
