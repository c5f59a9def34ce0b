// Package geo serves the map read models: raw markers, density clusters,
// and heatmap grids over the sightings table, with a short shared cache in
// front so map panning does not hammer Postgres.
package geo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"rainbowwatch/internal/cache"
	"rainbowwatch/internal/types"
)

const (
	// DefaultMarkerLimit caps marker responses when the caller does not ask
	// for a limit; MaxMarkerLimit is the hard ceiling.
	DefaultMarkerLimit = 500
	MaxMarkerLimit     = 2000

	// queryTTL is the cache lifetime for map query results. Five minutes
	// trades a little staleness for absorbing pan-and-zoom bursts.
	queryTTL = 5 * time.Minute

	// DefaultClusterDistanceMeters is the neighborhood radius for density
	// clustering; DefaultClusterMinPoints is the minimum cluster size.
	// Callers may override both per query.
	DefaultClusterDistanceMeters = 500.0
	DefaultClusterMinPoints      = 2

	// DefaultHeatmapCellMeters is the edge length of one heatmap grid cell
	// when the caller does not pick one.
	DefaultHeatmapCellMeters = 100.0

	// clusterQueryLimit bounds how many points feed one clustering or
	// heatmap pass.
	clusterQueryLimit = 5000
)

// PointSource supplies sighting geometry for a bounding box.
type PointSource interface {
	MarkersInBounds(ctx context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.MapMarker, error)
	PointsInBounds(ctx context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.SightingPoint, error)
}

// QueryEngine answers map queries with a cache-aside layer over the
// sighting store.
type QueryEngine struct {
	points PointSource
	cache  *cache.Store
	logger *slog.Logger
}

// NewQueryEngine creates a QueryEngine. The cache may be nil, in which case
// every query goes straight to the store.
func NewQueryEngine(points PointSource, store *cache.Store, logger *slog.Logger) *QueryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryEngine{points: points, cache: store, logger: logger}
}

// Markers returns raw sighting markers inside the bounds, newest first,
// capped at the given limit (DefaultMarkerLimit when zero, MaxMarkerLimit at
// most).
func (e *QueryEngine) Markers(ctx context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.MapMarker, error) {
	if !b.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBounds, "invalid bounding box", nil)
	}
	if limit <= 0 {
		limit = DefaultMarkerLimit
	}
	if limit > MaxMarkerLimit {
		limit = MaxMarkerLimit
	}

	key := queryKey("markers", b, f, fmt.Sprintf("%d", limit))
	var markers []types.MapMarker
	if e.cacheGet(ctx, key, &markers) {
		return markers, nil
	}

	markers, err := e.points.MarkersInBounds(ctx, b, f, limit)
	if err != nil {
		return nil, err
	}
	if markers == nil {
		markers = []types.MapMarker{}
	}
	e.cacheSet(ctx, key, markers)
	return markers, nil
}

// Clusters groups the sightings inside the bounds into density clusters.
// Zero distanceMeters or minPoints fall back to the defaults. Points with no
// neighbor within the cluster radius come back as single-member
// pseudo-clusters.
func (e *QueryEngine) Clusters(ctx context.Context, b types.Bounds, f types.MapFilters, distanceMeters float64, minPoints int) ([]types.Cluster, error) {
	if !b.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBounds, "invalid bounding box", nil)
	}
	if distanceMeters <= 0 {
		distanceMeters = DefaultClusterDistanceMeters
	}
	if minPoints <= 0 {
		minPoints = DefaultClusterMinPoints
	}

	key := queryKey("clusters", b, f, fmt.Sprintf("%.0f|%d", distanceMeters, minPoints))
	var clusters []types.Cluster
	if e.cacheGet(ctx, key, &clusters) {
		return clusters, nil
	}

	points, err := e.points.PointsInBounds(ctx, b, f, clusterQueryLimit)
	if err != nil {
		return nil, err
	}

	clusters = clusterPoints(points, metersToDegrees(distanceMeters), minPoints)
	e.cacheSet(ctx, key, clusters)
	return clusters, nil
}

// Heatmap bins the sightings inside the bounds into a grid of cellMeters-wide
// cells (DefaultHeatmapCellMeters when zero) and normalizes cell intensity
// against the densest cell.
func (e *QueryEngine) Heatmap(ctx context.Context, b types.Bounds, f types.MapFilters, cellMeters float64) ([]types.HeatmapCell, error) {
	if !b.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBounds, "invalid bounding box", nil)
	}
	if cellMeters <= 0 {
		cellMeters = DefaultHeatmapCellMeters
	}

	key := queryKey("heatmap", b, f, fmt.Sprintf("%.0f", cellMeters))
	var cells []types.HeatmapCell
	if e.cacheGet(ctx, key, &cells) {
		return cells, nil
	}

	points, err := e.points.PointsInBounds(ctx, b, f, clusterQueryLimit)
	if err != nil {
		return nil, err
	}

	cells = binHeatmap(points, metersToDegrees(cellMeters))
	e.cacheSet(ctx, key, cells)
	return cells, nil
}

// cacheGet loads a cached result into dest, treating any cache failure as a
// miss.
func (e *QueryEngine) cacheGet(ctx context.Context, key string, dest any) bool {
	if e.cache == nil {
		return false
	}
	err := e.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		e.logger.WarnContext(ctx, "map cache read failed", "key", key, "error", err)
	}
	return false
}

func (e *QueryEngine) cacheSet(ctx context.Context, key string, value any) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, value, queryTTL); err != nil {
		e.logger.WarnContext(ctx, "map cache write failed", "key", key, "error", err)
	}
}

// queryKey builds a stable cache key from rounded bounds, the filters, and
// the query tuning params. Bounds are rounded to four decimal places (about
// 11 meters) so tiny pan jitter hits the same entry.
func queryKey(kind string, b types.Bounds, f types.MapFilters, params string) string {
	raw := fmt.Sprintf("%.4f|%.4f|%.4f|%.4f|%s|%s|%s|%s",
		b.South, b.West, b.North, b.East,
		timeKey(f.From), timeKey(f.To), f.UserID, params)
	sum := sha256.Sum256([]byte(raw))
	return "map:" + kind + ":" + hex.EncodeToString(sum[:8])
}

func timeKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// clusterPoints runs a single-linkage pass: each unvisited point seeds a
// cluster that greedily absorbs every point within epsilonDeg of any member.
// Clusters below minPoints degrade to single-point pseudo-clusters.
func clusterPoints(points []types.SightingPoint, epsilonDeg float64, minPoints int) []types.Cluster {
	clusters := []types.Cluster{}
	if len(points) == 0 {
		return clusters
	}

	visited := make([]bool, len(points))

	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true
		members := []int{i}

		// Frontier expansion over indices already in the cluster.
		for cursor := 0; cursor < len(members); cursor++ {
			p := points[members[cursor]]
			for j := range points {
				if visited[j] {
					continue
				}
				if withinEpsilon(p, points[j], epsilonDeg) {
					visited[j] = true
					members = append(members, j)
				}
			}
		}

		if len(members) >= minPoints {
			clusters = append(clusters, buildCluster(points, members))
		} else {
			clusters = append(clusters, singleCluster(points[members[0]]))
		}
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].ID < clusters[j].ID
	})
	return clusters
}

// withinEpsilon uses a cheap equirectangular check in degree space. At the
// cluster radius involved the error against haversine is negligible.
func withinEpsilon(a, b types.SightingPoint, epsilonDeg float64) bool {
	dLat := a.Lat - b.Lat
	dLng := (a.Lng - b.Lng) * math.Cos((a.Lat+b.Lat)/2*math.Pi/180)
	return math.Sqrt(dLat*dLat+dLng*dLng) <= epsilonDeg
}

func buildCluster(points []types.SightingPoint, members []int) types.Cluster {
	c := types.Cluster{
		Count:     len(members),
		MemberIDs: make([]string, 0, len(members)),
	}
	var sumLat, sumLng float64
	for _, idx := range members {
		p := points[idx]
		sumLat += p.Lat
		sumLng += p.Lng
		c.MemberIDs = append(c.MemberIDs, p.ID)
		if c.EarliestAt.IsZero() || p.CapturedAt.Before(c.EarliestAt) {
			c.EarliestAt = p.CapturedAt
		}
		if p.CapturedAt.After(c.LatestAt) {
			c.LatestAt = p.CapturedAt
		}
	}
	c.Lat = sumLat / float64(len(members))
	c.Lng = sumLng / float64(len(members))
	sort.Strings(c.MemberIDs)
	c.ID = "cl_" + c.MemberIDs[0]
	return c
}

func singleCluster(p types.SightingPoint) types.Cluster {
	return types.Cluster{
		ID:         "pt_" + p.ID,
		Lat:        p.Lat,
		Lng:        p.Lng,
		Count:      1,
		MemberIDs:  []string{p.ID},
		EarliestAt: p.CapturedAt,
		LatestAt:   p.CapturedAt,
	}
}

// binHeatmap snaps points to a cellDeg-wide grid and normalizes counts so
// the densest cell carries intensity 1.0.
func binHeatmap(points []types.SightingPoint, cellDeg float64) []types.HeatmapCell {
	cells := []types.HeatmapCell{}
	if len(points) == 0 {
		return cells
	}

	type gridKey struct{ row, col int }
	counts := map[gridKey]int{}

	for _, p := range points {
		k := gridKey{
			row: int(math.Floor(p.Lat / cellDeg)),
			col: int(math.Floor(p.Lng / cellDeg)),
		}
		counts[k]++
	}

	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}

	for k, n := range counts {
		cells = append(cells, types.HeatmapCell{
			// Cell center, not corner.
			Lat:       (float64(k.row) + 0.5) * cellDeg,
			Lng:       (float64(k.col) + 0.5) * cellDeg,
			Count:     n,
			Intensity: float64(n) / float64(maxCount),
		})
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Lat != cells[j].Lat {
			return cells[i].Lat < cells[j].Lat
		}
		return cells[i].Lng < cells[j].Lng
	})
	return cells
}
