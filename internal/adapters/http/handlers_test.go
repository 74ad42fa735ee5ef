package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/orbittrack/internal/adapters/http"
	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
	"github.com/samirrijal/orbittrack/internal/core/usecases"
)

var observed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// ---- Mocks ----

type mockPoller struct{ state usecases.PollerState }

func (m mockPoller) State() usecases.PollerState { return m.state }

type mockCache struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, ports.ErrCacheMiss
}
func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (m *mockCache) Delete(ctx context.Context, key string) error { return nil }

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func londonSink() *usecases.StateSink {
	sink := usecases.NewStateSink(nil)
	sink.PublishPosition(observed, domain.Position{Latitude: 51.5074, Longitude: -0.1278, ObservedAt: observed})
	track := make(domain.Track, 45)
	for i := range track {
		track[i] = domain.TrackPoint{Latitude: 51.5074, Longitude: -0.1278, Timestamp: observed.Unix() + int64(i*120)}
	}
	sink.PublishTrack(observed, track)
	return sink
}

func makeDeps(sink *usecases.StateSink, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		State:    sink,
		Renderer: usecases.NewTrackRenderer(nil, 0, nil),
		Poller:   mockPoller{state: usecases.PollerIdleWithData},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte, map[string]string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, body, headers
}

// ---- State ----

func TestState_Loading(t *testing.T) {
	app := setupApp(makeDeps(usecases.NewStateSink(nil)))

	status, body, headers := get(t, app, "/v1/state")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if headers["Cache-Control"] != "no-store" {
		t.Errorf("expected no-store, got %q", headers["Cache-Control"])
	}

	var view domain.StateView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if !view.Loading {
		t.Error("expected loading=true before the first fetch")
	}
	if view.Latitude != nil || view.Display != nil {
		t.Error("expected no position before the first fetch")
	}
	if view.Track == nil || len(view.Track) != 0 {
		t.Errorf("expected empty track array, got %v", view.Track)
	}
}

func TestState_WithData(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	_, body, _ := get(t, app, "/v1/state")
	var view domain.StateView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.Loading {
		t.Error("expected loading=false")
	}
	if view.Display == nil || view.Display.Latitude != "51.5074" || view.Display.Longitude != "-0.1278" {
		t.Errorf("unexpected display: %+v", view.Display)
	}
	if len(view.Track) != 45 || view.Track[0] != [2]float64{51.5074, -0.1278} {
		t.Errorf("unexpected track: %d points", len(view.Track))
	}
	if view.Version != 2 {
		t.Errorf("expected version 2, got %d", view.Version)
	}
}

// ---- Position ----

func TestPosition_NotFoundWhileLoading(t *testing.T) {
	app := setupApp(makeDeps(usecases.NewStateSink(nil)))

	status, body, _ := get(t, app, "/v1/position")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatal(err)
	}
	if apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %s", apiErr.Code)
	}
	if apiErr.Loading == nil || !*apiErr.Loading {
		t.Error("expected loading=true in the error body")
	}
}

func TestPosition_Success(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	status, body, _ := get(t, app, "/v1/position")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var pos handler.PositionResponse
	if err := json.Unmarshal(body, &pos); err != nil {
		t.Fatal(err)
	}
	if pos.Latitude != 51.5074 || pos.Longitude != -0.1278 {
		t.Errorf("unexpected position: %+v", pos)
	}
	if pos.ObservedAt == nil || !pos.ObservedAt.Equal(observed) {
		t.Errorf("unexpected observed_at: %v", pos.ObservedAt)
	}
}

// ---- Track ----

func TestTrack_Pagination(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	status, body, headers := get(t, app, "/v1/track?offset=40&limit=10")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result struct {
		Data       []domain.TrackPoint `json:"data"`
		Pagination handler.Pagination  `json:"pagination"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 45 {
		t.Errorf("expected total 45, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 5 {
		t.Errorf("expected 5 points on the last page, got %d", len(result.Data))
	}
	link := headers["Link"]
	if !strings.Contains(link, `rel="prev"`) || strings.Contains(link, `rel="next"`) {
		t.Errorf("unexpected Link header: %s", link)
	}
}

func TestTrack_OffsetBeyondEnd(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	_, body, _ := get(t, app, "/v1/track?offset=1000")
	var result struct {
		Data []domain.TrackPoint `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Data) != 0 {
		t.Errorf("expected empty page, got %d", len(result.Data))
	}
}

func TestTrackGeoJSON(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	status, body, headers := get(t, app, "/v1/track.geojson")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if headers["Content-Type"] != "application/geo+json" {
		t.Errorf("unexpected content type %q", headers["Content-Type"])
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("unexpected collection: %s", body)
	}
	if fc.Features[0].Geometry.Type != "MultiLineString" || fc.Features[1].Geometry.Type != "Point" {
		t.Errorf("unexpected geometries: %s", body)
	}
}

// ---- Legacy alias ----

func TestISSNow_Deprecated(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	status, body, headers := get(t, app, "/v1/iss-now")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if headers["Deprecation"] != "true" || headers["Sunset"] == "" {
		t.Errorf("expected deprecation headers, got %v", headers)
	}
	if !strings.Contains(headers["Link"], "/v1/position") {
		t.Errorf("expected successor link, got %q", headers["Link"])
	}

	var r struct {
		Message     string `json:"message"`
		Timestamp   int64  `json:"timestamp"`
		ISSPosition struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"iss_position"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		t.Fatal(err)
	}
	if r.Message != "success" || r.ISSPosition.Latitude != "51.5074" || r.Timestamp != observed.Unix() {
		t.Errorf("unexpected body: %s", body)
	}
}

// ---- GraphQL ----

func TestGraphQL_State(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	query := `{"query":"{ state { latitude loading version track(limit: 3) { latitude longitude } } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			State struct {
				Latitude float64 `json:"latitude"`
				Loading  bool    `json:"loading"`
				Version  int     `json:"version"`
				Track    []struct {
					Latitude float64 `json:"latitude"`
				} `json:"track"`
			} `json:"state"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if result.Data.State.Latitude != 51.5074 || result.Data.State.Loading {
		t.Errorf("unexpected state: %+v", result.Data.State)
	}
	if len(result.Data.State.Track) != 3 {
		t.Errorf("expected 3 track points, got %d", len(result.Data.State.Track))
	}
}

func TestGraphQL_EmptyQuery(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	status, body, _ := get(t, app, "/v1/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), `"healthy"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		poller usecases.PollerState
		cache  ports.CacheService
		want   int
	}{
		{"polling", usecases.PollerIdleWithData, nil, 200},
		{"stopped", usecases.PollerStopped, nil, 503},
		{"cache miss is fine", usecases.PollerFetching, &mockCache{}, 200},
		{"cache down", usecases.PollerIdle, &mockCache{getFn: func(ctx context.Context, key string) ([]byte, error) {
			return nil, errors.New("dial tcp: connection refused")
		}}, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(londonSink(), func(d *handler.Dependencies) {
				d.Poller = mockPoller{state: tt.poller}
				d.Cache = tt.cache
			}))
			status, body, _ := get(t, app, "/v1/ready")
			if status != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

// ---- Middleware ----

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	_, _, headers := get(t, app, "/v1/track")
	etag := headers["Etag"]
	if etag == "" {
		t.Fatal("expected an ETag")
	}

	if !strings.HasPrefix(etag, `W/"v2-`) {
		t.Errorf("expected a version-tagged ETag, got %q", etag)
	}

	req := httptest.NewRequest("GET", "/v1/track", nil)
	req.Header.Set("If-None-Match", `"stale", `+etag)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	_, _, headers := get(t, app, "/v1/health")
	if headers["X-Content-Type-Options"] != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if headers["X-Request-Id"] == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps(londonSink()))

	status, _, _ := get(t, app, "/ws")
	if status != fiber.StatusUpgradeRequired {
		t.Errorf("expected 426, got %d", status)
	}
}
