package types

import (
	"time"
)

// Bounds is a geographic bounding box given as south/west/north/east edges.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Valid reports whether the box is well-formed. Boxes crossing the
// antimeridian are rejected; clients split them into two queries.
func (b Bounds) Valid() bool {
	return b.South >= -90 && b.North <= 90 && b.South < b.North &&
		b.West >= -180 && b.East <= 180 && b.West < b.East
}

// MapFilters narrows map queries beyond the bounding box. Zero values mean
// "no restriction".
type MapFilters struct {
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	UserID string     `json:"user_id,omitempty"`
}

// MapMarker is the lightweight record returned by marker queries.
type MapMarker struct {
	ID           string    `json:"id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}

// SightingPoint is the minimal point geometry used by clustering and
// heatmap binning.
type SightingPoint struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	CapturedAt time.Time `json:"captured_at"`
}

// Cluster is one density cluster of sighting points. Unclustered points are
// emitted as single-member pseudo-clusters with a distinguishing ID prefix.
type Cluster struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Count      int       `json:"count"`
	MemberIDs  []string  `json:"member_ids"`
	EarliestAt time.Time `json:"earliest_at"`
	LatestAt   time.Time `json:"latest_at"`
}

// HeatmapCell is one aggregated grid cell with its normalized intensity.
type HeatmapCell struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}
