// Package capture implements the per-sighting weather history job. For each
// new sighting it populates a fixed time grid of weather samples around the
// capture time and attaches a radar observation, tolerating per-point
// provider failures.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"rainbowwatch/internal/sun"
	"rainbowwatch/internal/types"
	"rainbowwatch/internal/weather"
)

const (
	// GridStep is the sample spacing; sample timestamps are rounded onto
	// this grid so replays upsert instead of duplicating.
	GridStep = 30 * time.Minute

	// GridSpan is the history window on each side of the capture time.
	// With GridStep this yields 13 grid points.
	GridSpan = 3 * time.Hour

	// currentWindow is how close a grid point must be to "now" for the
	// current-conditions endpoint to be used instead of the historical one.
	currentWindow = 5 * time.Minute

	// maxInFlight bounds concurrent provider calls per job to keep tail
	// latency low while respecting provider rate limits.
	maxInFlight = 4
)

// SightingStore is the narrow read interface the coordinator needs.
type SightingStore interface {
	GetByID(ctx context.Context, id string) (*types.Sighting, error)
}

// SampleStore persists weather samples with upsert semantics keyed by
// (sighting_id, observed_at).
type SampleStore interface {
	Upsert(ctx context.Context, s *types.WeatherSample) error
	LinkRadar(ctx context.Context, sightingID string, observedAt time.Time, radarSampleID string) error
}

// RadarStore persists radar samples with upsert semantics keyed by
// (sighting_id, observed_at).
type RadarStore interface {
	Upsert(ctx context.Context, s *types.RadarSample) error
}

// Result summarizes one capture run.
type Result struct {
	SightingID      string `json:"sighting_id"`
	PointsRequested int    `json:"points_requested"`
	PointsPersisted int    `json:"points_persisted"`
	RadarCaptured   bool   `json:"radar_captured"`
}

// Coordinator runs the weather capture job for a sighting.
type Coordinator struct {
	sightings SightingStore
	samples   SampleStore
	radar     RadarStore
	gateway   weather.Gateway
	clock     types.Clock
	logger    *slog.Logger
}

// Config holds the dependencies for creating a Coordinator.
type Config struct {
	Sightings SightingStore
	Samples   SampleStore
	Radar     RadarStore
	Gateway   weather.Gateway
	Clock     types.Clock
	Logger    *slog.Logger
}

// NewCoordinator creates a Coordinator with the given dependencies.
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Coordinator{
		sightings: cfg.Sightings,
		samples:   cfg.Samples,
		radar:     cfg.Radar,
		gateway:   cfg.Gateway,
		clock:     clock,
		logger:    logger,
	}
}

// Grid returns the capture timestamp grid: the capture time rounded onto the
// 30-minute grid, plus every step out to +-3h, in ascending order.
func Grid(capturedAt time.Time) []time.Time {
	center := capturedAt.UTC().Round(GridStep)
	steps := int(GridSpan / GridStep)
	grid := make([]time.Time, 0, 2*steps+1)
	for i := -steps; i <= steps; i++ {
		grid = append(grid, center.Add(time.Duration(i)*GridStep))
	}
	return grid
}

// Run executes the capture job for one sighting. Per-point provider failures
// are logged and skipped; the job succeeds if at least one sample persists.
// A vanished sighting or a permanent provider configuration error is
// returned as-is so the queue discards the job instead of retrying it.
func (c *Coordinator) Run(ctx context.Context, sightingID string) (*Result, error) {
	sighting, err := c.sightings.GetByID(ctx, sightingID)
	if err != nil {
		return nil, err
	}

	grid := Grid(sighting.CapturedAt)
	result := &Result{
		SightingID:      sightingID,
		PointsRequested: len(grid),
	}

	var persisted atomic.Int64
	var permanentErr atomic.Value
	var lastErr atomic.Value

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)

	now := c.clock.Now()
	for _, ts := range grid {
		g.Go(func() error {
			if err := c.capturePoint(gctx, sighting, ts, now); err != nil {
				var appErr *types.AppError
				if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamWeatherNotConfigured {
					// A misconfigured provider fails every point; remember
					// it so the whole job is discarded, not retried.
					permanentErr.Store(appErr)
				} else {
					lastErr.Store(err)
				}
				c.logger.WarnContext(gctx, "weather grid point failed",
					"sighting_id", sightingID,
					"observed_at", ts.Format(time.RFC3339),
					"error", err,
				)
				return nil // point failures never abort the batch
			}
			persisted.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.PointsPersisted = int(persisted.Load())

	if result.PointsPersisted == 0 {
		if pe, ok := permanentErr.Load().(*types.AppError); ok {
			return result, pe
		}
		if le, ok := lastErr.Load().(error); ok {
			return result, types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable,
				"no weather grid point could be captured", le)
		}
		return result, types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable,
			"no weather grid point could be captured", nil)
	}

	// Radar is best-effort: one attempt at capture time, failure logged only.
	result.RadarCaptured = c.captureRadar(ctx, sighting)

	c.logger.InfoContext(ctx, "weather capture complete",
		"sighting_id", sightingID,
		"points_requested", result.PointsRequested,
		"points_persisted", result.PointsPersisted,
		"radar_captured", result.RadarCaptured,
	)
	return result, nil
}

// capturePoint fetches and persists one grid point. Points within the
// current window of "now" use the current-conditions endpoint; everything
// else uses the historical one.
func (c *Coordinator) capturePoint(ctx context.Context, sighting *types.Sighting, ts, now time.Time) error {
	var snapshot *weather.Snapshot
	var err error

	if absDuration(now.Sub(ts)) <= currentWindow {
		snapshot, err = c.gateway.CurrentWeather(ctx, sighting.Location.Lat, sighting.Location.Lng)
	} else {
		snapshot, err = c.gateway.HistoricalWeather(ctx, sighting.Location.Lat, sighting.Location.Lng, ts)
	}
	if err != nil {
		return err
	}

	pos := sun.At(sighting.Location.Lat, sighting.Location.Lng, ts)
	sample := &types.WeatherSample{
		SightingID:     sighting.ID,
		ObservedAt:     ts,
		TemperatureC:   snapshot.TemperatureC,
		HumidityPct:    snapshot.HumidityPct,
		PressureHpa:    snapshot.PressureHpa,
		WeatherCode:    snapshot.WeatherCode,
		Description:    snapshot.Description,
		WindSpeedMS:    snapshot.WindSpeedMS,
		WindDirDeg:     snapshot.WindDirDeg,
		WindGustMS:     snapshot.WindGustMS,
		PrecipMm:       snapshot.PrecipMm,
		PrecipType:     snapshot.PrecipType,
		CloudCoverPct:  snapshot.CloudCoverPct,
		VisibilityM:    snapshot.VisibilityM,
		SunAzimuthDeg:  &pos.AzimuthDeg,
		SunAltitudeDeg: &pos.AltitudeDeg,
	}
	return c.samples.Upsert(ctx, sample)
}

// captureRadar attempts the single radar fetch at capture time and
// back-links the matching weather sample. Returns whether a radar sample
// was persisted.
func (c *Coordinator) captureRadar(ctx context.Context, sighting *types.Sighting) bool {
	captureTS := sighting.CapturedAt.UTC().Round(GridStep)

	snapshot, err := c.gateway.RadarAt(ctx, sighting.Location.Lat, sighting.Location.Lng, sighting.CapturedAt)
	if err != nil {
		c.logger.WarnContext(ctx, "radar capture failed",
			"sighting_id", sighting.ID,
			"error", err,
		)
		return false
	}

	radarSample := &types.RadarSample{
		SightingID:      sighting.ID,
		ObservedAt:      captureTS,
		Center:          snapshot.Center,
		RadiusKm:        snapshot.RadiusKm,
		IntensityDbz:    snapshot.IntensityDbz,
		MovementDirDeg:  snapshot.MovementDirDeg,
		MovementSpeedMS: snapshot.MovementSpeedMS,
	}
	if err := c.radar.Upsert(ctx, radarSample); err != nil {
		c.logger.WarnContext(ctx, "radar persist failed",
			"sighting_id", sighting.ID,
			"error", err,
		)
		return false
	}

	if err := c.samples.LinkRadar(ctx, sighting.ID, captureTS, radarSample.ID); err != nil {
		c.logger.WarnContext(ctx, "radar back-link failed",
			"sighting_id", sighting.ID,
			"radar_sample_id", radarSample.ID,
			"error", err,
		)
	}
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
