// Package handlers contains the HTTP handler implementations for the
// rainbowwatch API. Each handler declares the narrow interfaces it needs and
// receives concrete implementations from the entry point, which keeps the
// layer mockable without importing db or geo concretions in tests.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/core"
	"rainbowwatch/internal/types"
)

// MapQuerier answers the three map read models. Zero values for the tuning
// params (limit, cluster distance, min points, cell size) select the engine
// defaults.
type MapQuerier interface {
	Markers(ctx context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.MapMarker, error)
	Clusters(ctx context.Context, b types.Bounds, f types.MapFilters, distanceMeters float64, minPoints int) ([]types.Cluster, error)
	Heatmap(ctx context.Context, b types.Bounds, f types.MapFilters, cellMeters float64) ([]types.HeatmapCell, error)
}

// MapHandler serves the geospatial map endpoints.
type MapHandler struct {
	queries MapQuerier
}

// NewMapHandler creates a MapHandler.
func NewMapHandler(queries MapQuerier) *MapHandler {
	return &MapHandler{queries: queries}
}

// RegisterRoutes mounts the map endpoints under /v1.
func (h *MapHandler) RegisterRoutes(r chi.Router) {
	r.Route("/map", func(r chi.Router) {
		r.Get("/markers", h.HandleMarkers)
		r.Get("/clusters", h.HandleClusters)
		r.Get("/heatmap", h.HandleHeatmap)
	})
}

// HandleMarkers serves GET /v1/map/markers.
func (h *MapHandler) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	bounds, filters, err := parseMapQuery(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationLimitExceeded,
				"limit must be a non-negative integer", err))
			return
		}
	}

	markers, err := h.queries.Markers(r.Context(), bounds, filters, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"markers": markers,
	}})
}

// HandleClusters serves GET /v1/map/clusters.
func (h *MapHandler) HandleClusters(w http.ResponseWriter, r *http.Request) {
	bounds, filters, err := parseMapQuery(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	distance, err := parseMeters(r, "cluster_distance")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	minPoints := 0
	if raw := r.URL.Query().Get("min_points"); raw != "" {
		minPoints, err = strconv.Atoi(raw)
		if err != nil || minPoints < 1 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				"min_points must be a positive integer", err,
				map[string]any{"field": "min_points"}))
			return
		}
	}

	clusters, err := h.queries.Clusters(r.Context(), bounds, filters, distance, minPoints)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"clusters": clusters,
	}})
}

// HandleHeatmap serves GET /v1/map/heatmap.
func (h *MapHandler) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	bounds, filters, err := parseMapQuery(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cellSize, err := parseMeters(r, "grid_size")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cells, err := h.queries.Heatmap(r.Context(), bounds, filters, cellSize)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"cells": cells,
	}})
}

// parseMapQuery extracts the bounding box and optional filters shared by all
// three map endpoints.
func parseMapQuery(r *http.Request) (types.Bounds, types.MapFilters, error) {
	q := r.URL.Query()

	var bounds types.Bounds
	var err error
	if bounds.South, err = parseCoord(q.Get("south")); err != nil {
		return bounds, types.MapFilters{}, invalidBounds("south", err)
	}
	if bounds.West, err = parseCoord(q.Get("west")); err != nil {
		return bounds, types.MapFilters{}, invalidBounds("west", err)
	}
	if bounds.North, err = parseCoord(q.Get("north")); err != nil {
		return bounds, types.MapFilters{}, invalidBounds("north", err)
	}
	if bounds.East, err = parseCoord(q.Get("east")); err != nil {
		return bounds, types.MapFilters{}, invalidBounds("east", err)
	}
	if !bounds.Valid() {
		return bounds, types.MapFilters{}, types.NewAppError(types.ErrCodeValidationInvalidBounds,
			"bounding box is malformed or crosses the antimeridian", nil)
	}

	filters := types.MapFilters{UserID: q.Get("user_id")}
	if raw := q.Get("from"); raw != "" {
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return bounds, filters, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				"from must be RFC3339", perr, map[string]any{"field": "from"})
		}
		filters.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return bounds, filters, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				"to must be RFC3339", perr, map[string]any{"field": "to"})
		}
		filters.To = &t
	}
	return bounds, filters, nil
}

func parseCoord(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

// parseMeters reads an optional positive meter-valued query param, returning
// zero when absent so the engine applies its default.
func parseMeters(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			name+" must be a positive number of meters", err,
			map[string]any{"field": name})
	}
	return v, nil
}

func invalidBounds(field string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBounds,
		"bounding box edges must be decimal degrees", err,
		map[string]any{"field": field})
}
