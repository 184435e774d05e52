package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tourwatch/tourwatch/internal/adapters/http/api"
	"github.com/tourwatch/tourwatch/internal/adapters/store"
	"github.com/tourwatch/tourwatch/internal/domain/model"
)

// Mock implementations for testing
type mockDependencies struct {
	snapshot    model.Snapshot
	ready       bool
	feed        []model.Alert
	tourists    []model.Tourist
	registered  []model.Tourist
	registerErr error
	history     map[string][]model.Alert
	historyErr  error
}

func (m *mockDependencies) Snapshot(context.Context) (model.Snapshot, bool) {
	return m.snapshot, m.ready
}

func (m *mockDependencies) Feed(context.Context) []model.Alert {
	return m.feed
}

func (m *mockDependencies) Tourists(context.Context) ([]model.Tourist, error) {
	return m.tourists, nil
}

func (m *mockDependencies) RegisterTourist(_ context.Context, t model.Tourist) (string, error) {
	if m.registerErr != nil {
		return "", m.registerErr
	}
	m.registered = append(m.registered, t)
	return "TID-42", nil
}

func (m *mockDependencies) AlertHistory(_ context.Context, touristID string) ([]model.Alert, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history[touristID], nil
}

type mockStatsProvider struct {
	stats api.Stats
}

func (m *mockStatsProvider) Stats() api.Stats {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	provider := &mockStatsProvider{stats: api.Stats{
		Started:     true,
		StoreDriver: "memory",
		FeedDriver:  "memory",
		Tourists:    3,
	}}
	server := api.NewServer(deps, provider)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux, nil)
	return mux
}

func TestServerRegister(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{ready: true}
		mux := newMux(deps)

		Convey("Then the health endpoint serves metrics", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And the stats endpoint reports the provider payload", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)

			var stats api.Stats
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats.Started, ShouldBeTrue)
			So(stats.StoreDriver, ShouldEqual, "memory")
			So(stats.Tourists, ShouldEqual, 3)
		})

		Convey("And the map page is served at the root", func() {
			req := httptest.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
		})

		Convey("And unknown paths fall through to 404", func() {
			req := httptest.NewRequest("GET", "/nope", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSnapshotEndpoint(t *testing.T) {
	Convey("Given a server with a ready snapshot", t, func() {
		deps := &mockDependencies{
			ready: true,
			snapshot: model.Snapshot{
				Tourists: []model.Tourist{{ID: "TID-1", Name: "Ana"}},
				Alerts:   []model.Alert{{ID: "a1", TouristID: "TID-1", Status: model.StatusActive}},
			},
		}
		mux := newMux(deps)

		Convey("When GET /snapshot is called", func() {
			req := httptest.NewRequest("GET", "/snapshot", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				State    string          `json:"state"`
				Tourists []model.Tourist `json:"tourists"`
				Alerts   []model.Alert   `json:"alerts"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.State, ShouldEqual, "ready")
			So(resp.Tourists, ShouldHaveLength, 1)
			So(resp.Alerts, ShouldHaveLength, 1)
		})

		Convey("When the controller is still loading", func() {
			deps.ready = false
			deps.snapshot = model.Snapshot{}

			req := httptest.NewRequest("GET", "/snapshot", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"state":"loading"`)
			So(w.Body.String(), ShouldContainSubstring, `"tourists":[]`)
		})

		Convey("When POST is used it is rejected", func() {
			req := httptest.NewRequest("POST", "/snapshot", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestFeedEndpoint(t *testing.T) {
	Convey("Given a server with an alert feed", t, func() {
		deps := &mockDependencies{
			ready: true,
			feed: []model.Alert{
				{ID: "a3", Severity: model.SeverityHigh, Status: model.StatusActive},
				{ID: "a2", Severity: model.SeverityLow, Status: model.StatusActive},
				{ID: "a1", Severity: model.SeverityMedium, Status: model.StatusActive},
			},
		}
		mux := newMux(deps)

		Convey("When GET /feed is called the full feed is returned in order", func() {
			req := httptest.NewRequest("GET", "/feed", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			var alerts []model.Alert
			So(json.Unmarshal(w.Body.Bytes(), &alerts), ShouldBeNil)
			So(alerts, ShouldHaveLength, 3)
			So(alerts[0].ID, ShouldEqual, "a3")
		})

		Convey("When a limit is given the feed is capped", func() {
			req := httptest.NewRequest("GET", "/feed?limit=2", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			var alerts []model.Alert
			So(json.Unmarshal(w.Body.Bytes(), &alerts), ShouldBeNil)
			So(alerts, ShouldHaveLength, 2)
		})

		Convey("When the limit is invalid the request fails", func() {
			req := httptest.NewRequest("GET", "/feed?limit=zero", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the feed is empty an empty array comes back", func() {
			deps.feed = nil
			req := httptest.NewRequest("GET", "/feed", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestTouristsEndpoint(t *testing.T) {
	Convey("Given a server with registered tourists", t, func() {
		deps := &mockDependencies{
			ready:    true,
			tourists: []model.Tourist{{ID: "TID-1", Name: "Ana"}},
		}
		mux := newMux(deps)

		Convey("When GET /tourists is called the list comes back", func() {
			req := httptest.NewRequest("GET", "/tourists", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			var tourists []model.Tourist
			So(json.Unmarshal(w.Body.Bytes(), &tourists), ShouldBeNil)
			So(tourists, ShouldHaveLength, 1)
		})

		Convey("When POST /tourists carries a valid payload", func() {
			body := `{"name":"Bruno","document_id":"DOC-9","emergency_contact":"+55 11 99999"}`
			req := httptest.NewRequest("POST", "/tourists", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, "TID-42")
			So(deps.registered, ShouldHaveLength, 1)
			So(deps.registered[0].Name, ShouldEqual, "Bruno")
		})

		Convey("When the payload is missing a name it is rejected", func() {
			body := `{"document_id":"DOC-9"}`
			req := httptest.NewRequest("POST", "/tourists", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When only one coordinate is present it is rejected", func() {
			body := `{"name":"Bruno","document_id":"DOC-9","latitude":-3.1}`
			req := httptest.NewRequest("POST", "/tourists", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body is not JSON it is rejected", func() {
			req := httptest.NewRequest("POST", "/tourists", strings.NewReader("not json"))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store reports a conflict it maps to 409", func() {
			deps.registerErr = store.ErrConflict
			body := `{"name":"Bruno","document_id":"DOC-9"}`
			req := httptest.NewRequest("POST", "/tourists", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})
	})
}

func TestHistoryEndpoint(t *testing.T) {
	Convey("Given a server with alert history", t, func() {
		deps := &mockDependencies{
			ready: true,
			history: map[string][]model.Alert{
				"TID-1": {
					{ID: "a2", TouristID: "TID-1", Status: model.StatusActive},
					{ID: "a1", TouristID: "TID-1", Status: model.StatusResolved},
				},
			},
		}
		mux := newMux(deps)

		Convey("When GET /tourists/{id}/history is called", func() {
			req := httptest.NewRequest("GET", "/tourists/TID-1/history", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			var alerts []model.Alert
			So(json.Unmarshal(w.Body.Bytes(), &alerts), ShouldBeNil)
			So(alerts, ShouldHaveLength, 2)
			So(alerts[0].ID, ShouldEqual, "a2")
		})

		Convey("When the tourist has no history an empty array comes back", func() {
			req := httptest.NewRequest("GET", "/tourists/TID-9/history", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("When the path is malformed it is rejected", func() {
			req := httptest.NewRequest("GET", "/tourists/TID-1/somethingelse", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store reports not found it maps to 404", func() {
			deps.historyErr = store.ErrNotFound
			req := httptest.NewRequest("GET", "/tourists/TID-1/history", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
