package types

// NotificationType identifies the category of a notification for preference
// gating and per-type throttling.
type NotificationType string

const (
	NotificationRainbowAlert NotificationType = "rainbow_alert"
	NotificationLike         NotificationType = "like"
	NotificationComment      NotificationType = "comment"
	NotificationSystem       NotificationType = "system"
)

// Valid reports whether the notification type is one of the known values.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationRainbowAlert, NotificationLike, NotificationComment, NotificationSystem:
		return true
	}
	return false
}

// Platform tags a device endpoint with its push transport.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// PrecipitationType classifies observed precipitation in a weather sample.
type PrecipitationType string

const (
	PrecipNone    PrecipitationType = "none"
	PrecipRain    PrecipitationType = "rain"
	PrecipDrizzle PrecipitationType = "drizzle"
	PrecipSnow    PrecipitationType = "snow"
	PrecipSleet   PrecipitationType = "sleet"
)

// CardinalDirection is an 8-way compass bucket used for rainbow viewing
// direction. Each bucket covers a 45 degree sector centered on its bearing.
type CardinalDirection string

const (
	DirectionNorth     CardinalDirection = "north"
	DirectionNorthEast CardinalDirection = "northeast"
	DirectionEast      CardinalDirection = "east"
	DirectionSouthEast CardinalDirection = "southeast"
	DirectionSouth     CardinalDirection = "south"
	DirectionSouthWest CardinalDirection = "southwest"
	DirectionWest      CardinalDirection = "west"
	DirectionNorthWest CardinalDirection = "northwest"
)

// AllowedAlertRadiiKm enumerates the alert radius values a user may choose.
var AllowedAlertRadiiKm = []int{1, 5, 10, 25}

// ValidAlertRadiusKm reports whether the radius is one of the allowed values.
func ValidAlertRadiusKm(km int) bool {
	for _, r := range AllowedAlertRadiiKm {
		if km == r {
			return true
		}
	}
	return false
}
