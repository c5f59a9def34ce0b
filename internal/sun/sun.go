// Package sun computes the apparent position of the sun for a coordinate
// and instant. The calculation is pure: same inputs, same output, no I/O.
package sun

import (
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// Position is the sun's apparent position as seen from a point on the
// surface. Azimuth is degrees clockwise from true north; altitude is degrees
// above the horizon (negative below).
type Position struct {
	AzimuthDeg  float64 `json:"azimuth_deg"`
	AltitudeDeg float64 `json:"altitude_deg"`
}

// At returns the sun position for the given coordinate and instant.
func At(lat, lng float64, t time.Time) Position {
	observer := astral.Observer{Latitude: lat, Longitude: lng}
	return Position{
		AzimuthDeg:  astral.Azimuth(observer, t.UTC()),
		AltitudeDeg: astral.Elevation(observer, t.UTC(), true),
	}
}
