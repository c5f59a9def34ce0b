// Package rainbow implements the rainbow-favorability heuristic. Scoring is
// pure and deterministic: a weather snapshot and a sun position go in, a
// 0-100 score with a per-factor breakdown comes out. The Evaluator type
// layers provider fetching on top for callers that start from a coordinate.
package rainbow

import (
	"context"
	"math"
	"time"

	"rainbowwatch/internal/sun"
	"rainbowwatch/internal/types"
	"rainbowwatch/internal/weather"
)

// FavorableThreshold is the minimum score considered rainbow-favorable.
// The threshold is contract; the per-factor weighting below is tunable.
const FavorableThreshold = 60

// Factor weights. They sum to 1.0 so the combined score stays in [0,100].
const (
	weightHumidity    = 0.25
	weightCloudCover  = 0.25
	weightPrecip      = 0.30
	weightSunAltitude = 0.20
)

// FactorScores is the per-factor breakdown of a favorability evaluation,
// each factor in [0,100].
type FactorScores struct {
	Humidity    float64 `json:"humidity"`
	CloudCover  float64 `json:"cloud_cover"`
	Precip      float64 `json:"precipitation"`
	SunAltitude float64 `json:"sun_altitude"`
}

// Evaluation is the result of scoring one location at one instant.
type Evaluation struct {
	Score          int                     `json:"score"`
	Favorable      bool                    `json:"favorable"`
	Direction      types.CardinalDirection `json:"direction"`
	Factors        FactorScores            `json:"factors"`
	SunAzimuthDeg  float64                 `json:"sun_azimuth_deg"`
	SunAltitudeDeg float64                 `json:"sun_altitude_deg"`
}

// Score evaluates a weather snapshot against a sun position. Missing
// observation fields contribute a zero factor score rather than failing.
func Score(snapshot *weather.Snapshot, pos sun.Position) Evaluation {
	factors := FactorScores{
		Humidity:    humidityScore(snapshot.HumidityPct),
		CloudCover:  cloudCoverScore(snapshot.CloudCoverPct),
		Precip:      precipScore(snapshot.PrecipMm, snapshot.PrecipType),
		SunAltitude: sunAltitudeScore(pos.AltitudeDeg),
	}

	combined := weightHumidity*factors.Humidity +
		weightCloudCover*factors.CloudCover +
		weightPrecip*factors.Precip +
		weightSunAltitude*factors.SunAltitude

	score := int(math.Round(clamp(combined, 0, 100)))

	// No rainbow without sunlight: a sun at or below the horizon zeroes the
	// score no matter how wet the air is.
	if pos.AltitudeDeg <= 0 {
		score = 0
	}

	return Evaluation{
		Score:          score,
		Favorable:      score >= FavorableThreshold,
		Direction:      ViewingDirection(pos.AzimuthDeg),
		Factors:        factors,
		SunAzimuthDeg:  pos.AzimuthDeg,
		SunAltitudeDeg: pos.AltitudeDeg,
	}
}

// ViewingDirection returns the 8-way cardinal bucket opposite the sun: the
// rainbow appears at the antisolar point. Buckets are 45 degree sectors
// centered on each cardinal bearing.
func ViewingDirection(sunAzimuthDeg float64) types.CardinalDirection {
	anti := math.Mod(sunAzimuthDeg+180, 360)
	if anti < 0 {
		anti += 360
	}

	buckets := []types.CardinalDirection{
		types.DirectionNorth,
		types.DirectionNorthEast,
		types.DirectionEast,
		types.DirectionSouthEast,
		types.DirectionSouth,
		types.DirectionSouthWest,
		types.DirectionWest,
		types.DirectionNorthWest,
	}
	idx := int(math.Floor((anti+22.5)/45)) % 8
	return buckets[idx]
}

// humidityScore peaks near saturation: droplets in the air are what refract.
// Below 40% relative humidity the factor is zero.
func humidityScore(humidityPct *float64) float64 {
	if humidityPct == nil {
		return 0
	}
	h := clamp(*humidityPct, 0, 100)
	if h <= 40 {
		return 0
	}
	return (h - 40) / 60 * 100
}

// cloudCoverScore favors partial cover: 25-75% scores full marks, clear or
// overcast skies taper off linearly.
func cloudCoverScore(cloudCoverPct *float64) float64 {
	if cloudCoverPct == nil {
		return 0
	}
	c := clamp(*cloudCoverPct, 0, 100)
	switch {
	case c >= 25 && c <= 75:
		return 100
	case c < 25:
		return c / 25 * 100
	default:
		return (100 - c) / 25 * 100
	}
}

// precipScore favors recent liquid precipitation. Frozen types refract
// poorly and score low.
func precipScore(precipMm *float64, precipType *string) float64 {
	if precipMm == nil || *precipMm <= 0 {
		return 0
	}
	if precipType != nil {
		switch types.PrecipitationType(*precipType) {
		case types.PrecipSnow, types.PrecipSleet:
			return 20
		}
	}
	if *precipMm >= 0.5 {
		return 100
	}
	return 70
}

// sunAltitudeScore favors a low-but-risen sun. Above 42 degrees the rainbow
// arc sits below the horizon; the band from 10 to 40 degrees scores full
// marks with linear ramps on both sides.
func sunAltitudeScore(altitudeDeg float64) float64 {
	switch {
	case altitudeDeg <= 0:
		return 0
	case altitudeDeg < 10:
		return altitudeDeg / 10 * 100
	case altitudeDeg <= 40:
		return 100
	case altitudeDeg < 50:
		return (50 - altitudeDeg) / 10 * 100
	default:
		return 0
	}
}

// EstimateViewingDuration derives the expected viewing window from an
// evaluation: a 20 minute base, +10 for scores at or above 80 (+5 at 70),
// +5 when recent precipitation was favorable, +5 when the sun sits below 20
// degrees, clamped to [10,45] minutes.
func EstimateViewingDuration(eval Evaluation) time.Duration {
	minutes := 20.0
	switch {
	case eval.Score >= 80:
		minutes += 10
	case eval.Score >= 70:
		minutes += 5
	}
	if eval.Factors.Precip >= 70 {
		minutes += 5
	}
	if eval.SunAltitudeDeg < 20 {
		minutes += 5
	}
	minutes = clamp(minutes, 10, 45)
	return time.Duration(minutes) * time.Minute
}

// Evaluator fetches current conditions and scores them. Fetching is the
// only impure step; everything downstream of the snapshot is Score.
type Evaluator struct {
	gateway weather.Gateway
}

// NewEvaluator creates an Evaluator backed by the given weather gateway.
func NewEvaluator(gateway weather.Gateway) *Evaluator {
	return &Evaluator{gateway: gateway}
}

// Evaluate fetches the current weather snapshot for a coordinate and scores
// it together with the sun position at the given instant.
func (e *Evaluator) Evaluate(ctx context.Context, lat, lng float64, t time.Time) (*Evaluation, error) {
	snapshot, err := e.gateway.CurrentWeather(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	eval := Score(snapshot, sun.At(lat, lng, t))
	return &eval, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
