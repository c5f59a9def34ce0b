package types

import (
	"time"
)

// Location represents a geographic coordinate.
type Location struct {
	Lat float64 `json:"lat" db:"location_lat"`
	Lng float64 `json:"lng" db:"location_lng"`
}

// Sighting is the read-only anchor entity for the weather pipeline. It is
// created by the upload flow; this core only reads it to attach weather
// history and to answer map queries.
type Sighting struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Location     Location  `json:"location" db:"-"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	CapturedAt   time.Time `json:"captured_at" db:"captured_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// WeatherSample is one time-series weather observation tied to a sighting.
// Samples are unique per (sighting_id, observed_at) where observed_at is
// rounded to a 30-minute grid; writes are upserts, never plain inserts.
//
// Optional fields are pointers so the API can serialize them as null rather
// than omitting them.
type WeatherSample struct {
	ID         string    `json:"id" db:"id"`
	SightingID string    `json:"sighting_id" db:"sighting_id"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`

	TemperatureC  *float64 `json:"temperature_c" db:"temperature_c"`
	HumidityPct   *float64 `json:"humidity_pct" db:"humidity_pct"`
	PressureHpa   *float64 `json:"pressure_hpa" db:"pressure_hpa"`
	WeatherCode   *int     `json:"weather_code" db:"weather_code"`
	Description   *string  `json:"description" db:"description"`
	WindSpeedMS   *float64 `json:"wind_speed_ms" db:"wind_speed_ms"`
	WindDirDeg    *float64 `json:"wind_dir_deg" db:"wind_dir_deg"`
	WindGustMS    *float64 `json:"wind_gust_ms" db:"wind_gust_ms"`
	PrecipMm      *float64 `json:"precip_mm" db:"precip_mm"`
	PrecipType    *string  `json:"precip_type" db:"precip_type"`
	CloudCoverPct *float64 `json:"cloud_cover_pct" db:"cloud_cover_pct"`
	VisibilityM   *float64 `json:"visibility_m" db:"visibility_m"`

	SunAzimuthDeg  *float64 `json:"sun_azimuth_deg" db:"sun_azimuth_deg"`
	SunAltitudeDeg *float64 `json:"sun_altitude_deg" db:"sun_altitude_deg"`

	RadarSampleID *string `json:"radar_sample_id" db:"radar_sample_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RadarSample is a radar observation captured for a sighting, unique per
// (sighting_id, observed_at).
type RadarSample struct {
	ID         string    `json:"id" db:"id"`
	SightingID string    `json:"sighting_id" db:"sighting_id"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
	Center     Location  `json:"center" db:"-"`
	RadiusKm   float64   `json:"radius_km" db:"radius_km"`

	IntensityDbz    *float64 `json:"intensity_dbz" db:"intensity_dbz"`
	MovementDirDeg  *float64 `json:"movement_dir_deg" db:"movement_dir_deg"`
	MovementSpeedMS *float64 `json:"movement_speed_ms" db:"movement_speed_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MonitoringLocation is a fixed geographic point periodically scanned for
// rainbow-favorable conditions. The list is compiled in; instances are
// immutable values.
type MonitoringLocation struct {
	ID   string
	Name string
	Lat  float64
	Lng  float64
}

// NotificationRecord is the persisted in-app copy of a dispatched
// notification. It is created at dispatch time and mutated only via the
// read-flag update.
type NotificationRecord struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	Payload   map[string]any   `json:"payload" db:"payload"`
	Read      bool             `json:"read" db:"read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// DeviceEndpoint is a registered push target for a user. Read-only to this
// core; the device-registration flow manages the lifecycle.
type DeviceEndpoint struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Platform  Platform  `json:"platform" db:"platform"`
	Token     string    `json:"-" db:"token"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserAlertPreferences controls which notification types a user receives and
// how rainbow alerts are filtered.
type UserAlertPreferences struct {
	UserID          string `json:"-" db:"user_id"`
	RainbowAlerts   bool   `json:"rainbow_alerts" db:"rainbow_alerts"`
	Likes           bool   `json:"likes" db:"likes"`
	Comments        bool   `json:"comments" db:"comments"`
	System          bool   `json:"system" db:"system"`
	AlertRadiusKm   int    `json:"alert_radius_km" db:"alert_radius_km" validate:"omitempty"`
	QuietHoursStart string `json:"quiet_hours_start" db:"quiet_hours_start"` // "HH:MM", empty = disabled
	QuietHoursEnd   string `json:"quiet_hours_end" db:"quiet_hours_end"`
	Timezone        string `json:"timezone" db:"timezone"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultAlertPreferences returns the preferences applied to users who have
// never saved any: all types enabled, 10 km radius, no quiet hours.
func DefaultAlertPreferences(userID string) UserAlertPreferences {
	return UserAlertPreferences{
		UserID:        userID,
		RainbowAlerts: true,
		Likes:         true,
		Comments:      true,
		System:        true,
		AlertRadiusKm: 10,
		Timezone:      "UTC",
	}
}

// TypeEnabled reports whether the given notification type is enabled.
// Unknown types are allowed through so new types fail open.
func (p UserAlertPreferences) TypeEnabled(t NotificationType) bool {
	switch t {
	case NotificationRainbowAlert:
		return p.RainbowAlerts
	case NotificationLike:
		return p.Likes
	case NotificationComment:
		return p.Comments
	case NotificationSystem:
		return p.System
	default:
		return true
	}
}

// QuietHoursConfigured reports whether both quiet-hours bounds are set.
func (p UserAlertPreferences) QuietHoursConfigured() bool {
	return p.QuietHoursStart != "" && p.QuietHoursEnd != ""
}
