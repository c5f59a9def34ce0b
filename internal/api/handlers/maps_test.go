package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/types"
)

type mockMapQuerier struct {
	markers  []types.MapMarker
	clusters []types.Cluster
	cells    []types.HeatmapCell
	err      error

	lastBounds    types.Bounds
	lastFilters   types.MapFilters
	lastLimit     int
	lastDistance  float64
	lastMinPoints int
	lastCellSize  float64
}

func (m *mockMapQuerier) Markers(_ context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.MapMarker, error) {
	m.lastBounds, m.lastFilters, m.lastLimit = b, f, limit
	return m.markers, m.err
}

func (m *mockMapQuerier) Clusters(_ context.Context, b types.Bounds, f types.MapFilters, distanceMeters float64, minPoints int) ([]types.Cluster, error) {
	m.lastBounds, m.lastFilters = b, f
	m.lastDistance, m.lastMinPoints = distanceMeters, minPoints
	return m.clusters, m.err
}

func (m *mockMapQuerier) Heatmap(_ context.Context, b types.Bounds, f types.MapFilters, cellMeters float64) ([]types.HeatmapCell, error) {
	m.lastBounds, m.lastFilters = b, f
	m.lastCellSize = cellMeters
	return m.cells, m.err
}

func serveMap(q *mockMapQuerier, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewMapHandler(q).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

const validBoundsQuery = "south=36.0&west=137.8&north=36.3&east=138.1"

func TestHandleMarkers(t *testing.T) {
	q := &mockMapQuerier{markers: []types.MapMarker{{ID: "sig_1", Lat: 36.1, Lng: 137.9}}}
	rec := serveMap(q, "/map/markers?"+validBoundsQuery+"&limit=100")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if q.lastLimit != 100 {
		t.Errorf("limit = %d, want 100", q.lastLimit)
	}
	if q.lastBounds.South != 36.0 || q.lastBounds.East != 138.1 {
		t.Errorf("bounds = %+v, want parsed query box", q.lastBounds)
	}

	var resp struct {
		Data struct {
			Markers []types.MapMarker `json:"markers"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Markers) != 1 || resp.Data.Markers[0].ID != "sig_1" {
		t.Errorf("markers = %+v, want sig_1", resp.Data.Markers)
	}
}

func TestHandleMarkers_BadInput(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"missing edge", "/map/markers?south=36.0&west=137.8&north=36.3"},
		{"non-numeric edge", "/map/markers?south=abc&west=137.8&north=36.3&east=138.1"},
		{"inverted box", "/map/markers?south=36.3&west=137.8&north=36.0&east=138.1"},
		{"negative limit", "/map/markers?" + validBoundsQuery + "&limit=-1"},
		{"non-numeric limit", "/map/markers?" + validBoundsQuery + "&limit=lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveMap(&mockMapQuerier{}, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestParseMapQuery_Filters(t *testing.T) {
	q := &mockMapQuerier{}
	rec := serveMap(q, "/map/clusters?"+validBoundsQuery+"&from=2026-06-01T00:00:00Z&to=2026-06-30T00:00:00Z&user_id=usr_1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if q.lastFilters.UserID != "usr_1" {
		t.Errorf("user filter = %s, want usr_1", q.lastFilters.UserID)
	}
	wantFrom := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if q.lastFilters.From == nil || !q.lastFilters.From.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", q.lastFilters.From, wantFrom)
	}
	if q.lastFilters.To == nil {
		t.Error("to filter must be set")
	}
}

func TestParseMapQuery_BadTimeFilter(t *testing.T) {
	rec := serveMap(&mockMapQuerier{}, "/map/heatmap?"+validBoundsQuery+"&from=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for non-RFC3339 from", rec.Code)
	}
}

func TestHandleClusters_TuningParams(t *testing.T) {
	q := &mockMapQuerier{}
	rec := serveMap(q, "/map/clusters?"+validBoundsQuery+"&cluster_distance=250&min_points=3")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if q.lastDistance != 250 || q.lastMinPoints != 3 {
		t.Errorf("tuning = (%v, %d), want (250, 3)", q.lastDistance, q.lastMinPoints)
	}

	// Absent params pass through as zero so the engine picks its defaults.
	q = &mockMapQuerier{}
	serveMap(q, "/map/clusters?"+validBoundsQuery)
	if q.lastDistance != 0 || q.lastMinPoints != 0 {
		t.Errorf("tuning = (%v, %d), want zero values when unset", q.lastDistance, q.lastMinPoints)
	}
}

func TestHandleClusters_BadTuningParams(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"zero distance", "/map/clusters?" + validBoundsQuery + "&cluster_distance=0"},
		{"negative distance", "/map/clusters?" + validBoundsQuery + "&cluster_distance=-50"},
		{"non-numeric distance", "/map/clusters?" + validBoundsQuery + "&cluster_distance=near"},
		{"zero min points", "/map/clusters?" + validBoundsQuery + "&min_points=0"},
		{"non-numeric min points", "/map/clusters?" + validBoundsQuery + "&min_points=few"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveMap(&mockMapQuerier{}, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleHeatmap_GridSizeParam(t *testing.T) {
	q := &mockMapQuerier{}
	rec := serveMap(q, "/map/heatmap?"+validBoundsQuery+"&grid_size=500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if q.lastCellSize != 500 {
		t.Errorf("cell size = %v, want 500", q.lastCellSize)
	}

	rec = serveMap(&mockMapQuerier{}, "/map/heatmap?"+validBoundsQuery+"&grid_size=-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for negative grid_size", rec.Code)
	}
}

func TestHandleClusters_PropagatesError(t *testing.T) {
	q := &mockMapQuerier{err: types.NewAppError(types.ErrCodeInternalDB, "query failed", nil)}
	rec := serveMap(q, "/map/clusters?"+validBoundsQuery)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleHeatmap(t *testing.T) {
	q := &mockMapQuerier{cells: []types.HeatmapCell{{Lat: 36.1, Lng: 137.9, Count: 3, Intensity: 1.0}}}
	rec := serveMap(q, "/map/heatmap?"+validBoundsQuery)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data struct {
			Cells []types.HeatmapCell `json:"cells"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Cells) != 1 || resp.Data.Cells[0].Intensity != 1.0 {
		t.Errorf("cells = %+v, want one full-intensity cell", resp.Data.Cells)
	}
}
