package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rainbowwatch/internal/config"
	"rainbowwatch/internal/types"
)

// Snapshot is a normalized weather observation from the provider. Fields the
// provider did not report are nil and persist as SQL NULLs.
type Snapshot struct {
	ObservedAt time.Time

	TemperatureC  *float64
	HumidityPct   *float64
	PressureHpa   *float64
	WeatherCode   *int
	Description   *string
	WindSpeedMS   *float64
	WindDirDeg    *float64
	WindGustMS    *float64
	PrecipMm      *float64
	PrecipType    *string
	CloudCoverPct *float64
	VisibilityM   *float64
}

// RadarSnapshot is a normalized radar observation centered on a point.
type RadarSnapshot struct {
	ObservedAt time.Time
	Center     types.Location
	RadiusKm   float64

	IntensityDbz    *float64
	MovementDirDeg  *float64
	MovementSpeedMS *float64
}

// Gateway is the client contract for the external weather/radar provider.
// No caching happens at this layer; callers own persistence and reuse.
type Gateway interface {
	// CurrentWeather fetches the present conditions at a point.
	CurrentWeather(ctx context.Context, lat, lng float64) (*Snapshot, error)
	// HistoricalWeather fetches conditions at a point for a past timestamp.
	HistoricalWeather(ctx context.Context, lat, lng float64, ts time.Time) (*Snapshot, error)
	// RadarAt fetches the radar observation nearest to the timestamp.
	RadarAt(ctx context.Context, lat, lng float64, ts time.Time) (*RadarSnapshot, error)
}

// Compile-time assertion that HTTPGateway implements Gateway.
var _ Gateway = (*HTTPGateway)(nil)

// HTTPGateway is the production Gateway backed by the provider's HTTP API.
type HTTPGateway struct {
	cfg    config.WeatherConfig
	client *resilientClient
}

// NewHTTPGateway creates a gateway from the weather configuration. The
// per-call timeout comes from cfg.Timeout (10s by default) so one slow call
// can never stall a capture batch beyond its slot.
func NewHTTPGateway(cfg config.WeatherConfig) *HTTPGateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &HTTPGateway{
		cfg:    cfg,
		client: newResilientClient(httpClient, DefaultRetryPolicy(), "RainbowWatch/1.0"),
	}
}

// configured returns a permanent configuration error when credentials or the
// endpoint are missing. Checked per call rather than at startup so processes
// that never reach the provider can still boot.
func (g *HTTPGateway) configured() error {
	if g.cfg.BaseURL == "" || g.cfg.APIKey == "" {
		return types.NewAppError(types.ErrCodeUpstreamWeatherNotConfigured,
			"weather provider credentials are not configured", nil)
	}
	return nil
}

// providerObservation is the provider's wire format for weather responses.
type providerObservation struct {
	ObservedAt    time.Time `json:"observed_at"`
	TemperatureC  *float64  `json:"temperature_c"`
	HumidityPct   *float64  `json:"humidity_pct"`
	PressureHpa   *float64  `json:"pressure_hpa"`
	WeatherCode   *int      `json:"weather_code"`
	Description   *string   `json:"description"`
	WindSpeedMS   *float64  `json:"wind_speed_ms"`
	WindDirDeg    *float64  `json:"wind_direction_deg"`
	WindGustMS    *float64  `json:"wind_gust_ms"`
	PrecipMm      *float64  `json:"precipitation_mm"`
	PrecipType    *string   `json:"precipitation_type"`
	CloudCoverPct *float64  `json:"cloud_cover_pct"`
	VisibilityM   *float64  `json:"visibility_m"`
}

// providerRadar is the provider's wire format for radar responses.
type providerRadar struct {
	ObservedAt      time.Time `json:"observed_at"`
	CenterLat       float64   `json:"center_lat"`
	CenterLng       float64   `json:"center_lng"`
	RadiusKm        float64   `json:"radius_km"`
	IntensityDbz    *float64  `json:"intensity_dbz"`
	MovementDirDeg  *float64  `json:"movement_direction_deg"`
	MovementSpeedMS *float64  `json:"movement_speed_ms"`
}

// CurrentWeather implements Gateway.
func (g *HTTPGateway) CurrentWeather(ctx context.Context, lat, lng float64) (*Snapshot, error) {
	var obs providerObservation
	params := url.Values{
		"lat": {formatCoord(lat)},
		"lng": {formatCoord(lng)},
	}
	if err := g.getJSON(ctx, "/v1/weather/current", params, &obs); err != nil {
		return nil, err
	}
	return normalizeObservation(&obs), nil
}

// HistoricalWeather implements Gateway.
func (g *HTTPGateway) HistoricalWeather(ctx context.Context, lat, lng float64, ts time.Time) (*Snapshot, error) {
	var obs providerObservation
	params := url.Values{
		"lat":  {formatCoord(lat)},
		"lng":  {formatCoord(lng)},
		"time": {ts.UTC().Format(time.RFC3339)},
	}
	if err := g.getJSON(ctx, "/v1/weather/historical", params, &obs); err != nil {
		return nil, err
	}
	return normalizeObservation(&obs), nil
}

// RadarAt implements Gateway.
func (g *HTTPGateway) RadarAt(ctx context.Context, lat, lng float64, ts time.Time) (*RadarSnapshot, error) {
	var radar providerRadar
	params := url.Values{
		"lat":  {formatCoord(lat)},
		"lng":  {formatCoord(lng)},
		"time": {ts.UTC().Format(time.RFC3339)},
	}
	if err := g.getJSON(ctx, "/v1/radar", params, &radar); err != nil {
		return nil, err
	}
	return &RadarSnapshot{
		ObservedAt:      radar.ObservedAt,
		Center:          types.Location{Lat: radar.CenterLat, Lng: radar.CenterLng},
		RadiusKm:        radar.RadiusKm,
		IntensityDbz:    radar.IntensityDbz,
		MovementDirDeg:  radar.MovementDirDeg,
		MovementSpeedMS: radar.MovementSpeedMS,
	}, nil
}

// getJSON performs a GET through the resilient client and decodes the JSON
// body into dest.
func (g *HTTPGateway) getJSON(ctx context.Context, path string, params url.Values, dest any) error {
	if err := g.configured(); err != nil {
		return err
	}

	reqURL := g.cfg.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Rejected credentials are a setup problem, not a transient fault.
		return types.NewAppError(types.ErrCodeUpstreamWeatherNotConfigured,
			fmt.Sprintf("weather provider rejected credentials (%d)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable,
			fmt.Sprintf("weather provider returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable,
			"failed to read provider response", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable,
			"failed to decode provider response", err)
	}
	return nil
}

func normalizeObservation(obs *providerObservation) *Snapshot {
	return &Snapshot{
		ObservedAt:    obs.ObservedAt,
		TemperatureC:  obs.TemperatureC,
		HumidityPct:   obs.HumidityPct,
		PressureHpa:   obs.PressureHpa,
		WeatherCode:   obs.WeatherCode,
		Description:   obs.Description,
		WindSpeedMS:   obs.WindSpeedMS,
		WindDirDeg:    obs.WindDirDeg,
		WindGustMS:    obs.WindGustMS,
		PrecipMm:      obs.PrecipMm,
		PrecipType:    obs.PrecipType,
		CloudCoverPct: obs.CloudCoverPct,
		VisibilityM:   obs.VisibilityM,
	}
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
