package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"rainbowwatch/internal/types"
	"rainbowwatch/internal/weather"
)

// --- Mocks ---

type mockSightingStore struct {
	sighting *types.Sighting
	err      error
}

func (m *mockSightingStore) GetByID(_ context.Context, id string) (*types.Sighting, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sighting, nil
}

type mockSampleStore struct {
	mu      sync.Mutex
	samples map[string]*types.WeatherSample // keyed by observed_at, upsert semantics
	linked  []string
	err     error
}

func (m *mockSampleStore) Upsert(_ context.Context, s *types.WeatherSample) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == nil {
		m.samples = map[string]*types.WeatherSample{}
	}
	m.samples[s.ObservedAt.UTC().Format(time.RFC3339)] = s
	return nil
}

func (m *mockSampleStore) LinkRadar(_ context.Context, _ string, _ time.Time, radarSampleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linked = append(m.linked, radarSampleID)
	return nil
}

type mockRadarStore struct {
	mu      sync.Mutex
	upserts int
	err     error
}

func (m *mockRadarStore) Upsert(_ context.Context, s *types.RadarSample) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = "rs_test"
	m.upserts++
	return nil
}

// scriptedGateway fails specific timestamps and counts calls.
type scriptedGateway struct {
	mu         sync.Mutex
	failAt     map[string]error // RFC3339 -> error for historical calls
	currentErr error
	radarErr   error

	currentCalls    int
	historicalCalls int
}

func (g *scriptedGateway) CurrentWeather(_ context.Context, _, _ float64) (*weather.Snapshot, error) {
	g.mu.Lock()
	g.currentCalls++
	g.mu.Unlock()
	if g.currentErr != nil {
		return nil, g.currentErr
	}
	return &weather.Snapshot{}, nil
}

func (g *scriptedGateway) HistoricalWeather(_ context.Context, _, _ float64, ts time.Time) (*weather.Snapshot, error) {
	g.mu.Lock()
	g.historicalCalls++
	g.mu.Unlock()
	if err, ok := g.failAt[ts.UTC().Format(time.RFC3339)]; ok {
		return nil, err
	}
	return &weather.Snapshot{}, nil
}

func (g *scriptedGateway) RadarAt(_ context.Context, _, _ float64, _ time.Time) (*weather.RadarSnapshot, error) {
	if g.radarErr != nil {
		return nil, g.radarErr
	}
	return &weather.RadarSnapshot{Center: types.Location{Lat: 36.1, Lng: 137.9}, RadiusKm: 5}, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// --- Helpers ---

var captureTime = time.Date(2026, 6, 15, 7, 12, 0, 0, time.UTC)

func testSighting() *types.Sighting {
	return &types.Sighting{
		ID:         "sght_1",
		UserID:     "usr_1",
		Location:   types.Location{Lat: 36.115, Lng: 137.954},
		CapturedAt: captureTime,
	}
}

func newTestCoordinator(sightings *mockSightingStore, samples *mockSampleStore, radar *mockRadarStore, gateway *scriptedGateway, now time.Time) *Coordinator {
	return NewCoordinator(Config{
		Sightings: sightings,
		Samples:   samples,
		Radar:     radar,
		Gateway:   gateway,
		Clock:     fixedClock{now: now},
	})
}

// --- Grid ---

func TestGrid(t *testing.T) {
	grid := Grid(captureTime)

	if len(grid) != 13 {
		t.Fatalf("grid size = %d, want 13", len(grid))
	}

	// 07:12 rounds to 07:00; the grid spans 04:00 through 10:00.
	center := time.Date(2026, 6, 15, 7, 0, 0, 0, time.UTC)
	if !grid[0].Equal(center.Add(-3 * time.Hour)) {
		t.Errorf("grid start = %v, want %v", grid[0], center.Add(-3*time.Hour))
	}
	if !grid[6].Equal(center) {
		t.Errorf("grid center = %v, want %v", grid[6], center)
	}
	if !grid[12].Equal(center.Add(3 * time.Hour)) {
		t.Errorf("grid end = %v, want %v", grid[12], center.Add(3*time.Hour))
	}

	for i := 1; i < len(grid); i++ {
		if grid[i].Sub(grid[i-1]) != GridStep {
			t.Errorf("uneven step between %v and %v", grid[i-1], grid[i])
		}
	}
}

func TestGrid_RoundsHalfUp(t *testing.T) {
	// 07:45 rounds up to 08:00.
	grid := Grid(time.Date(2026, 6, 15, 7, 45, 0, 0, time.UTC))
	want := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	if !grid[6].Equal(want) {
		t.Errorf("center = %v, want %v", grid[6], want)
	}
}

// --- Run ---

func TestRun_AllPointsPersist(t *testing.T) {
	samples := &mockSampleStore{}
	radar := &mockRadarStore{}
	gateway := &scriptedGateway{}
	// Now is far from every grid point, so everything is historical.
	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, samples, radar, gateway, captureTime.Add(24*time.Hour))

	result, err := c.Run(context.Background(), "sght_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PointsRequested != 13 || result.PointsPersisted != 13 {
		t.Errorf("requested=%d persisted=%d, want 13/13", result.PointsRequested, result.PointsPersisted)
	}
	if !result.RadarCaptured {
		t.Error("radar capture should succeed")
	}
	if gateway.currentCalls != 0 {
		t.Errorf("current calls = %d, want 0 when now is outside the grid", gateway.currentCalls)
	}
	if len(samples.linked) != 1 {
		t.Errorf("radar back-links = %d, want 1", len(samples.linked))
	}

	// Sun position must be attached to every sample.
	for ts, s := range samples.samples {
		if s.SunAzimuthDeg == nil || s.SunAltitudeDeg == nil {
			t.Errorf("sample %s missing sun position", ts)
		}
	}
}

func TestRun_UsesCurrentEndpointNearNow(t *testing.T) {
	samples := &mockSampleStore{}
	gateway := &scriptedGateway{}
	// Now sits exactly on a grid point (07:30), inside the current window.
	now := time.Date(2026, 6, 15, 7, 30, 0, 0, time.UTC)
	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, samples, &mockRadarStore{}, gateway, now)

	if _, err := c.Run(context.Background(), "sght_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.currentCalls != 1 {
		t.Errorf("current calls = %d, want 1", gateway.currentCalls)
	}
	if gateway.historicalCalls != 12 {
		t.Errorf("historical calls = %d, want 12", gateway.historicalCalls)
	}
}

func TestRun_PartialFailureStillSucceeds(t *testing.T) {
	transient := types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable, "provider 503", nil)
	failAt := map[string]error{}
	// Fail 5 of the 13 grid points.
	center := time.Date(2026, 6, 15, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		failAt[center.Add(time.Duration(i)*GridStep).Format(time.RFC3339)] = transient
	}

	samples := &mockSampleStore{}
	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, samples, &mockRadarStore{},
		&scriptedGateway{failAt: failAt}, captureTime.Add(24*time.Hour))

	result, err := c.Run(context.Background(), "sght_1")
	if err != nil {
		t.Fatalf("partial failure must not fail the job: %v", err)
	}
	if result.PointsPersisted != 8 {
		t.Errorf("persisted = %d, want 8", result.PointsPersisted)
	}
}

func TestRun_TotalFailureIsTransientError(t *testing.T) {
	transient := types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable, "provider down", nil)
	failAt := map[string]error{}
	for _, ts := range Grid(captureTime) {
		failAt[ts.Format(time.RFC3339)] = transient
	}

	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, &mockSampleStore{}, &mockRadarStore{},
		&scriptedGateway{failAt: failAt}, captureTime.Add(24*time.Hour))

	result, err := c.Run(context.Background(), "sght_1")
	if err == nil {
		t.Fatal("zero persisted points must be an error")
	}
	appErr, ok := err.(*types.AppError)
	if !ok || !appErr.Retryable() {
		t.Errorf("total transient failure must stay retryable, got %v", err)
	}
	if result.PointsPersisted != 0 {
		t.Errorf("persisted = %d, want 0", result.PointsPersisted)
	}
}

func TestRun_ConfigErrorIsPermanent(t *testing.T) {
	notConfigured := types.NewAppError(types.ErrCodeUpstreamWeatherNotConfigured, "no api key", nil)
	failAt := map[string]error{}
	for _, ts := range Grid(captureTime) {
		failAt[ts.Format(time.RFC3339)] = notConfigured
	}

	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, &mockSampleStore{}, &mockRadarStore{},
		&scriptedGateway{failAt: failAt, currentErr: notConfigured}, captureTime.Add(24*time.Hour))

	_, err := c.Run(context.Background(), "sght_1")
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, ok := err.(*types.AppError)
	if !ok || appErr.Code != types.ErrCodeUpstreamWeatherNotConfigured {
		t.Fatalf("error = %v, want not-configured", err)
	}
	if appErr.Retryable() {
		t.Error("configuration errors must never be retryable")
	}
}

func TestRun_SightingNotFoundPropagates(t *testing.T) {
	notFound := types.NewAppError(types.ErrCodeNotFoundSighting, "gone", nil)
	c := newTestCoordinator(&mockSightingStore{err: notFound}, &mockSampleStore{}, &mockRadarStore{},
		&scriptedGateway{}, captureTime)

	_, err := c.Run(context.Background(), "sght_missing")
	appErr, ok := err.(*types.AppError)
	if !ok || appErr.Code != types.ErrCodeNotFoundSighting {
		t.Errorf("error = %v, want not-found passthrough", err)
	}
}

func TestRun_RadarFailureIsBestEffort(t *testing.T) {
	samples := &mockSampleStore{}
	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, samples, &mockRadarStore{},
		&scriptedGateway{radarErr: types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable, "no radar", nil)},
		captureTime.Add(24*time.Hour))

	result, err := c.Run(context.Background(), "sght_1")
	if err != nil {
		t.Fatalf("radar failure must not fail the job: %v", err)
	}
	if result.RadarCaptured {
		t.Error("radar captured flag should be false")
	}
	if result.PointsPersisted != 13 {
		t.Errorf("persisted = %d, want 13", result.PointsPersisted)
	}
}

func TestRun_ReplayIsIdempotent(t *testing.T) {
	samples := &mockSampleStore{}
	c := newTestCoordinator(&mockSightingStore{sighting: testSighting()}, samples, &mockRadarStore{},
		&scriptedGateway{}, captureTime.Add(24*time.Hour))

	if _, err := c.Run(context.Background(), "sght_1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := c.Run(context.Background(), "sght_1"); err != nil {
		t.Fatalf("second run: %v", err)
	}

	// Upsert semantics: the same 13 grid keys, no duplicates.
	if len(samples.samples) != 13 {
		t.Errorf("distinct samples after replay = %d, want 13", len(samples.samples))
	}
}
