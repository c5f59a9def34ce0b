package sun

import (
	"testing"
	"time"
)

func TestAt(t *testing.T) {
	// Nagano, mid-June. Coarse bounds only: the point is that day reads as
	// day and night as night, not the exact ephemeris.
	lat, lng := 36.115, 137.954

	t.Run("local noon", func(t *testing.T) {
		noon := time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC)
		pos := At(lat, lng, noon)
		if pos.AltitudeDeg < 40 {
			t.Errorf("altitude = %v, want a high midday sun", pos.AltitudeDeg)
		}
		if pos.AzimuthDeg < 0 || pos.AzimuthDeg >= 360 {
			t.Errorf("azimuth = %v, want [0,360)", pos.AzimuthDeg)
		}
	})

	t.Run("local midnight", func(t *testing.T) {
		midnight := time.Date(2026, 6, 15, 15, 0, 0, 0, time.UTC)
		pos := At(lat, lng, midnight)
		if pos.AltitudeDeg >= 0 {
			t.Errorf("altitude = %v, want below the horizon at night", pos.AltitudeDeg)
		}
	})

	t.Run("non-UTC input", func(t *testing.T) {
		jst := time.FixedZone("JST", 9*3600)
		utc := time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC)
		local := utc.In(jst)
		if At(lat, lng, utc) != At(lat, lng, local) {
			t.Error("same instant in different zones must yield the same position")
		}
	})
}
