package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rainbowwatch/internal/types"
)

// WeatherSampleRepository provides data access for the weather_samples
// table. Writes are upserts keyed by (sighting_id, observed_at) so that
// replayed capture jobs never duplicate rows.
type WeatherSampleRepository struct {
	db DBTX
}

// NewWeatherSampleRepository creates a new WeatherSampleRepository backed by
// the given database connection (pool or transaction).
func NewWeatherSampleRepository(db DBTX) *WeatherSampleRepository {
	return &WeatherSampleRepository{db: db}
}

// Upsert inserts the sample or, when a row for (sighting_id, observed_at)
// already exists, overwrites its observation fields. The sample's ID is
// populated with the persisted row's ID either way.
func (r *WeatherSampleRepository) Upsert(ctx context.Context, s *types.WeatherSample) error {
	if s.ID == "" {
		s.ID = "ws_" + uuid.New().String()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO weather_samples
		 (id, sighting_id, observed_at,
		  temperature_c, humidity_pct, pressure_hpa, weather_code, description,
		  wind_speed_ms, wind_dir_deg, wind_gust_ms, precip_mm, precip_type,
		  cloud_cover_pct, visibility_m, sun_azimuth_deg, sun_altitude_deg,
		  radar_sample_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		         $15, $16, $17, $18, NOW(), NOW())
		 ON CONFLICT (sighting_id, observed_at) DO UPDATE SET
		   temperature_c = EXCLUDED.temperature_c,
		   humidity_pct = EXCLUDED.humidity_pct,
		   pressure_hpa = EXCLUDED.pressure_hpa,
		   weather_code = EXCLUDED.weather_code,
		   description = EXCLUDED.description,
		   wind_speed_ms = EXCLUDED.wind_speed_ms,
		   wind_dir_deg = EXCLUDED.wind_dir_deg,
		   wind_gust_ms = EXCLUDED.wind_gust_ms,
		   precip_mm = EXCLUDED.precip_mm,
		   precip_type = EXCLUDED.precip_type,
		   cloud_cover_pct = EXCLUDED.cloud_cover_pct,
		   visibility_m = EXCLUDED.visibility_m,
		   sun_azimuth_deg = EXCLUDED.sun_azimuth_deg,
		   sun_altitude_deg = EXCLUDED.sun_altitude_deg,
		   radar_sample_id = COALESCE(EXCLUDED.radar_sample_id, weather_samples.radar_sample_id),
		   updated_at = NOW()
		 RETURNING id`,
		s.ID, s.SightingID, s.ObservedAt,
		s.TemperatureC, s.HumidityPct, s.PressureHpa, s.WeatherCode, s.Description,
		s.WindSpeedMS, s.WindDirDeg, s.WindGustMS, s.PrecipMm, s.PrecipType,
		s.CloudCoverPct, s.VisibilityM, s.SunAzimuthDeg, s.SunAltitudeDeg,
		s.RadarSampleID,
	)
	if err := row.Scan(&s.ID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert weather sample", err)
	}
	return nil
}

// ListBySighting returns all weather samples for a sighting ordered by
// observation time.
func (r *WeatherSampleRepository) ListBySighting(ctx context.Context, sightingID string) ([]types.WeatherSample, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, sighting_id, observed_at,
		        temperature_c, humidity_pct, pressure_hpa, weather_code, description,
		        wind_speed_ms, wind_dir_deg, wind_gust_ms, precip_mm, precip_type,
		        cloud_cover_pct, visibility_m, sun_azimuth_deg, sun_altitude_deg,
		        radar_sample_id, created_at, updated_at
		 FROM weather_samples
		 WHERE sighting_id = $1
		 ORDER BY observed_at ASC`,
		sightingID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list weather samples", err)
	}
	defer rows.Close()

	var samples []types.WeatherSample
	for rows.Next() {
		var s types.WeatherSample
		if err := rows.Scan(
			&s.ID, &s.SightingID, &s.ObservedAt,
			&s.TemperatureC, &s.HumidityPct, &s.PressureHpa, &s.WeatherCode, &s.Description,
			&s.WindSpeedMS, &s.WindDirDeg, &s.WindGustMS, &s.PrecipMm, &s.PrecipType,
			&s.CloudCoverPct, &s.VisibilityM, &s.SunAzimuthDeg, &s.SunAltitudeDeg,
			&s.RadarSampleID, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan weather sample", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "weather sample iteration failed", err)
	}
	return samples, nil
}

// CountBySighting returns the number of persisted samples for a sighting.
func (r *WeatherSampleRepository) CountBySighting(ctx context.Context, sightingID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM weather_samples WHERE sighting_id = $1`, sightingID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count weather samples", err)
	}
	return count, nil
}

// LinkRadar back-links the weather sample at the given observation time to a
// radar sample. A missing weather row is not an error; the radar sample
// simply stands alone.
func (r *WeatherSampleRepository) LinkRadar(ctx context.Context, sightingID string, observedAt time.Time, radarSampleID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE weather_samples
		 SET radar_sample_id = $3, updated_at = NOW()
		 WHERE sighting_id = $1 AND observed_at = $2`,
		sightingID, observedAt, radarSampleID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to link radar sample", err)
	}
	return nil
}

// RadarSampleRepository provides data access for the radar_samples table,
// unique per (sighting_id, observed_at).
type RadarSampleRepository struct {
	db DBTX
}

// NewRadarSampleRepository creates a new RadarSampleRepository backed by the
// given database connection (pool or transaction).
func NewRadarSampleRepository(db DBTX) *RadarSampleRepository {
	return &RadarSampleRepository{db: db}
}

// Upsert inserts the radar sample, or refreshes the existing row for
// (sighting_id, observed_at). The sample's ID is populated with the
// persisted row's ID either way.
func (r *RadarSampleRepository) Upsert(ctx context.Context, s *types.RadarSample) error {
	if s.ID == "" {
		s.ID = "rs_" + uuid.New().String()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO radar_samples
		 (id, sighting_id, observed_at, center_lat, center_lng, radius_km,
		  intensity_dbz, movement_dir_deg, movement_speed_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (sighting_id, observed_at) DO UPDATE SET
		   intensity_dbz = EXCLUDED.intensity_dbz,
		   movement_dir_deg = EXCLUDED.movement_dir_deg,
		   movement_speed_ms = EXCLUDED.movement_speed_ms
		 RETURNING id`,
		s.ID, s.SightingID, s.ObservedAt, s.Center.Lat, s.Center.Lng, s.RadiusKm,
		s.IntensityDbz, s.MovementDirDeg, s.MovementSpeedMS,
	)
	if err := row.Scan(&s.ID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert radar sample", err)
	}
	return nil
}

// ListBySighting returns all radar samples for a sighting ordered by
// observation time.
func (r *RadarSampleRepository) ListBySighting(ctx context.Context, sightingID string) ([]types.RadarSample, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, sighting_id, observed_at, center_lat, center_lng, radius_km,
		        intensity_dbz, movement_dir_deg, movement_speed_ms, created_at
		 FROM radar_samples
		 WHERE sighting_id = $1
		 ORDER BY observed_at ASC`,
		sightingID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list radar samples", err)
	}
	defer rows.Close()

	var samples []types.RadarSample
	for rows.Next() {
		var s types.RadarSample
		if err := rows.Scan(
			&s.ID, &s.SightingID, &s.ObservedAt, &s.Center.Lat, &s.Center.Lng, &s.RadiusKm,
			&s.IntensityDbz, &s.MovementDirDeg, &s.MovementSpeedMS, &s.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan radar sample", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "radar sample iteration failed", err)
	}
	return samples, nil
}
