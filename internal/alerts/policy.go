package alerts

import (
	"fmt"
	"time"

	"rainbowwatch/internal/types"
)

// timeOfDay represents a wall-clock time with hour and minute components.
type timeOfDay struct {
	hour   int
	minute int
}

// toMinutes converts a timeOfDay to minutes since midnight for comparison.
func (t timeOfDay) toMinutes() int {
	return t.hour*60 + t.minute
}

// parseTimeOfDay parses a "HH:MM" string into a timeOfDay.
func parseTimeOfDay(s string) (timeOfDay, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return timeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return timeOfDay{hour: h, minute: m}, nil
}

// inQuietHours reports whether now (already localized to the user's
// timezone) falls inside the quiet period. Overnight ranges (start > end,
// e.g. 22:00-07:00) suppress when now >= start OR now < end; same-day
// ranges when start <= now < end.
func inQuietHours(now time.Time, start, end timeOfDay) bool {
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.toMinutes()
	endMinutes := end.toMinutes()

	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes < endMinutes
	}
	return nowMinutes >= startMinutes || nowMinutes < endMinutes
}

// quietHoursActive evaluates the user's quiet-hours window against the
// clock. Invalid configuration (bad timezone or time strings) fails open:
// the error is reported and the notification is delivered anyway.
func quietHoursActive(prefs types.UserAlertPreferences, now time.Time) (bool, error) {
	if !prefs.QuietHoursConfigured() {
		return false, nil
	}

	tz := prefs.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	start, err := parseTimeOfDay(prefs.QuietHoursStart)
	if err != nil {
		return false, fmt.Errorf("invalid quiet hours start: %w", err)
	}
	end, err := parseTimeOfDay(prefs.QuietHoursEnd)
	if err != nil {
		return false, fmt.Errorf("invalid quiet hours end: %w", err)
	}

	return inQuietHours(now.In(loc), start, end), nil
}
