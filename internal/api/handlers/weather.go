package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/core"
	"rainbowwatch/internal/types"
)

// SightingReader resolves sightings by ID.
type SightingReader interface {
	GetByID(ctx context.Context, id string) (*types.Sighting, error)
}

// SampleReader lists the captured weather history for a sighting.
type SampleReader interface {
	ListBySighting(ctx context.Context, sightingID string) ([]types.WeatherSample, error)
}

// RadarReader lists the captured radar history for a sighting.
type RadarReader interface {
	ListBySighting(ctx context.Context, sightingID string) ([]types.RadarSample, error)
}

// WeatherHandler serves the per-sighting weather history endpoint.
type WeatherHandler struct {
	sightings SightingReader
	samples   SampleReader
	radar     RadarReader
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(sightings SightingReader, samples SampleReader, radar RadarReader) *WeatherHandler {
	return &WeatherHandler{sightings: sightings, samples: samples, radar: radar}
}

// RegisterRoutes mounts the weather endpoints under /v1.
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sightings/{sightingID}/weather", h.HandleGetWeather)
}

// weatherHistoryResponse is the response body for the weather history
// endpoint. Sample slices are never null, and missing observation fields
// inside a sample serialize as null rather than being omitted.
type weatherHistoryResponse struct {
	SightingID   string                `json:"sighting_id"`
	Samples      []types.WeatherSample `json:"samples"`
	RadarSamples []types.RadarSample   `json:"radar_samples"`
}

// HandleGetWeather serves GET /v1/sightings/{sightingID}/weather. The
// sighting must exist; a sighting with no captured history yet returns empty
// lists, not 404.
func (h *WeatherHandler) HandleGetWeather(w http.ResponseWriter, r *http.Request) {
	sightingID := chi.URLParam(r, "sightingID")
	if sightingID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"sighting id is required", nil))
		return
	}

	sighting, err := h.sightings.GetByID(r.Context(), sightingID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	samples, err := h.samples.ListBySighting(r.Context(), sighting.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	radarSamples, err := h.radar.ListBySighting(r.Context(), sighting.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if samples == nil {
		samples = []types.WeatherSample{}
	}
	if radarSamples == nil {
		radarSamples = []types.RadarSample{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: weatherHistoryResponse{
		SightingID:   sighting.ID,
		Samples:      samples,
		RadarSamples: radarSamples,
	}})
}
