package rainbow

import (
	"context"
	"testing"
	"time"

	"rainbowwatch/internal/sun"
	"rainbowwatch/internal/types"
	"rainbowwatch/internal/weather"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestScore_FavorableConditions(t *testing.T) {
	// Post-shower golden hour: humid, partly cloudy, recent rain, low sun.
	snapshot := &weather.Snapshot{
		HumidityPct:   f64(90),
		CloudCoverPct: f64(50),
		PrecipMm:      f64(1.2),
		PrecipType:    str("rain"),
	}
	pos := sun.Position{AzimuthDeg: 270, AltitudeDeg: 15}

	eval := Score(snapshot, pos)

	if !eval.Favorable {
		t.Fatalf("expected favorable, got score %d", eval.Score)
	}
	if eval.Score < FavorableThreshold || eval.Score > 100 {
		t.Errorf("score %d out of expected range [%d,100]", eval.Score, FavorableThreshold)
	}
	// Sun in the west means the rainbow appears to the east.
	if eval.Direction != types.DirectionEast {
		t.Errorf("direction = %s, want %s", eval.Direction, types.DirectionEast)
	}
}

func TestScore_UnfavorableConditions(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *weather.Snapshot
		pos      sun.Position
	}{
		{
			name: "dry clear midday",
			snapshot: &weather.Snapshot{
				HumidityPct:   f64(20),
				CloudCoverPct: f64(0),
			},
			pos: sun.Position{AzimuthDeg: 180, AltitudeDeg: 60},
		},
		{
			name: "sun below horizon",
			snapshot: &weather.Snapshot{
				HumidityPct:   f64(95),
				CloudCoverPct: f64(50),
				PrecipMm:      f64(2),
				PrecipType:    str("rain"),
			},
			pos: sun.Position{AzimuthDeg: 90, AltitudeDeg: -5},
		},
		{
			name:     "no observations at all",
			snapshot: &weather.Snapshot{},
			pos:      sun.Position{AzimuthDeg: 180, AltitudeDeg: 25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := Score(tt.snapshot, tt.pos)
			if eval.Favorable {
				t.Errorf("expected unfavorable, got score %d", eval.Score)
			}
			if eval.Score < 0 || eval.Score > 100 {
				t.Errorf("score %d out of [0,100]", eval.Score)
			}
		})
	}
}

func TestScore_SunBelowHorizonZeroes(t *testing.T) {
	// A humid rainy night would score high on the weather factors alone;
	// without sunlight the evaluation must still come out zero.
	snapshot := &weather.Snapshot{
		HumidityPct:   f64(95),
		CloudCoverPct: f64(50),
		PrecipMm:      f64(2),
		PrecipType:    str("rain"),
	}
	eval := Score(snapshot, sun.Position{AzimuthDeg: 90, AltitudeDeg: -5})
	if eval.Score != 0 {
		t.Errorf("score = %d, want 0 with the sun below the horizon", eval.Score)
	}
	if eval.Favorable {
		t.Error("favorable must be false with the sun below the horizon")
	}
}

func TestScore_ThresholdBoundary(t *testing.T) {
	// Favorable must mean exactly score >= threshold.
	snapshot := &weather.Snapshot{
		HumidityPct:   f64(100),
		CloudCoverPct: f64(50),
		PrecipMm:      f64(1),
		PrecipType:    str("rain"),
	}
	eval := Score(snapshot, sun.Position{AzimuthDeg: 250, AltitudeDeg: 20})
	if eval.Favorable != (eval.Score >= FavorableThreshold) {
		t.Errorf("favorable flag %v inconsistent with score %d", eval.Favorable, eval.Score)
	}
}

func TestViewingDirection(t *testing.T) {
	tests := []struct {
		azimuth float64
		want    types.CardinalDirection
	}{
		{0, types.DirectionSouth},
		{90, types.DirectionWest},
		{180, types.DirectionNorth},
		{270, types.DirectionEast},
		{45, types.DirectionSouthWest},
		{225, types.DirectionNorthEast},
		{359, types.DirectionSouth},
		{181, types.DirectionNorth},
	}

	for _, tt := range tests {
		if got := ViewingDirection(tt.azimuth); got != tt.want {
			t.Errorf("ViewingDirection(%v) = %s, want %s", tt.azimuth, got, tt.want)
		}
	}
}

func TestFactorScores(t *testing.T) {
	t.Run("humidity", func(t *testing.T) {
		if got := humidityScore(nil); got != 0 {
			t.Errorf("nil humidity = %v, want 0", got)
		}
		if got := humidityScore(f64(40)); got != 0 {
			t.Errorf("40%% humidity = %v, want 0", got)
		}
		if got := humidityScore(f64(100)); got != 100 {
			t.Errorf("100%% humidity = %v, want 100", got)
		}
		if got := humidityScore(f64(70)); got != 50 {
			t.Errorf("70%% humidity = %v, want 50", got)
		}
	})

	t.Run("cloud cover", func(t *testing.T) {
		for _, c := range []float64{25, 50, 75} {
			if got := cloudCoverScore(f64(c)); got != 100 {
				t.Errorf("cloud %v%% = %v, want 100", c, got)
			}
		}
		if got := cloudCoverScore(f64(0)); got != 0 {
			t.Errorf("clear sky = %v, want 0", got)
		}
		if got := cloudCoverScore(f64(100)); got != 0 {
			t.Errorf("overcast = %v, want 0", got)
		}
	})

	t.Run("precipitation", func(t *testing.T) {
		if got := precipScore(nil, nil); got != 0 {
			t.Errorf("no precip data = %v, want 0", got)
		}
		if got := precipScore(f64(0), nil); got != 0 {
			t.Errorf("zero precip = %v, want 0", got)
		}
		if got := precipScore(f64(1.0), str("rain")); got != 100 {
			t.Errorf("heavy rain = %v, want 100", got)
		}
		if got := precipScore(f64(0.2), str("drizzle")); got != 70 {
			t.Errorf("drizzle = %v, want 70", got)
		}
		if got := precipScore(f64(2.0), str("snow")); got != 20 {
			t.Errorf("snow = %v, want 20", got)
		}
	})

	t.Run("sun altitude", func(t *testing.T) {
		if got := sunAltitudeScore(-1); got != 0 {
			t.Errorf("below horizon = %v, want 0", got)
		}
		if got := sunAltitudeScore(25); got != 100 {
			t.Errorf("25 degrees = %v, want 100", got)
		}
		if got := sunAltitudeScore(55); got != 0 {
			t.Errorf("high sun = %v, want 0", got)
		}
		if got := sunAltitudeScore(5); got != 50 {
			t.Errorf("5 degrees = %v, want 50", got)
		}
	})
}

func TestEstimateViewingDuration(t *testing.T) {
	tests := []struct {
		name string
		eval Evaluation
		want time.Duration
	}{
		{
			name: "baseline",
			eval: Evaluation{Score: 60, SunAltitudeDeg: 30},
			want: 20 * time.Minute,
		},
		{
			name: "high score",
			eval: Evaluation{Score: 85, SunAltitudeDeg: 30},
			want: 30 * time.Minute,
		},
		{
			name: "mid score",
			eval: Evaluation{Score: 72, SunAltitudeDeg: 30},
			want: 25 * time.Minute,
		},
		{
			name: "everything aligned",
			eval: Evaluation{
				Score:          92,
				Factors:        FactorScores{Precip: 100},
				SunAltitudeDeg: 12,
			},
			want: 40 * time.Minute,
		},
		{
			name: "low sun bonus",
			eval: Evaluation{Score: 60, SunAltitudeDeg: 15},
			want: 25 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateViewingDuration(tt.eval); got != tt.want {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}

// stubGateway returns a fixed current snapshot.
type stubGateway struct {
	snapshot *weather.Snapshot
	err      error
}

func (s *stubGateway) CurrentWeather(ctx context.Context, lat, lng float64) (*weather.Snapshot, error) {
	return s.snapshot, s.err
}

func (s *stubGateway) HistoricalWeather(ctx context.Context, lat, lng float64, at time.Time) (*weather.Snapshot, error) {
	return s.snapshot, s.err
}

func (s *stubGateway) RadarAt(ctx context.Context, lat, lng float64, at time.Time) (*weather.RadarSnapshot, error) {
	return nil, s.err
}

func TestEvaluator_PropagatesGatewayError(t *testing.T) {
	wantErr := types.NewAppError(types.ErrCodeUpstreamWeatherUnavailable, "down", nil)
	evaluator := NewEvaluator(&stubGateway{err: wantErr})

	_, err := evaluator.Evaluate(context.Background(), 36.1, 137.9, time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEvaluator_ScoresSnapshot(t *testing.T) {
	evaluator := NewEvaluator(&stubGateway{snapshot: &weather.Snapshot{
		HumidityPct:   f64(85),
		CloudCoverPct: f64(40),
		PrecipMm:      f64(0.8),
		PrecipType:    str("rain"),
	}})

	// Mid-afternoon in Nagano; exact sun position varies but the evaluation
	// must be internally consistent.
	at := time.Date(2026, 6, 15, 7, 0, 0, 0, time.UTC)
	eval, err := evaluator.Evaluate(context.Background(), 36.115, 137.954, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Score < 0 || eval.Score > 100 {
		t.Errorf("score %d out of [0,100]", eval.Score)
	}
	if eval.Favorable != (eval.Score >= FavorableThreshold) {
		t.Errorf("favorable flag inconsistent with score %d", eval.Score)
	}
	if eval.Direction == "" {
		t.Error("direction must always be set")
	}
}
