package alerts

import (
	"testing"
	"time"

	"rainbowwatch/internal/types"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    timeOfDay
		wantErr bool
	}{
		{"00:00", timeOfDay{0, 0}, false},
		{"22:00", timeOfDay{22, 0}, false},
		{"07:30", timeOfDay{7, 30}, false},
		{"23:59", timeOfDay{23, 59}, false},
		{"24:00", timeOfDay{}, true},
		{"12:60", timeOfDay{}, true},
		{"noon", timeOfDay{}, true},
		{"", timeOfDay{}, true},
	}

	for _, tt := range tests {
		got, err := parseTimeOfDay(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTimeOfDay(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTimeOfDay(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTimeOfDay(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestInQuietHours(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name       string
		now        time.Time
		start, end timeOfDay
		want       bool
	}{
		{"same-day inside", at(14, 0), timeOfDay{13, 0}, timeOfDay{15, 0}, true},
		{"same-day before", at(12, 59), timeOfDay{13, 0}, timeOfDay{15, 0}, false},
		{"same-day at start", at(13, 0), timeOfDay{13, 0}, timeOfDay{15, 0}, true},
		{"same-day at end", at(15, 0), timeOfDay{13, 0}, timeOfDay{15, 0}, false},
		{"overnight late evening", at(23, 30), timeOfDay{22, 0}, timeOfDay{7, 0}, true},
		{"overnight early morning", at(6, 59), timeOfDay{22, 0}, timeOfDay{7, 0}, true},
		{"overnight at end", at(7, 0), timeOfDay{22, 0}, timeOfDay{7, 0}, false},
		{"overnight midday", at(12, 0), timeOfDay{22, 0}, timeOfDay{7, 0}, false},
		{"overnight at start", at(22, 0), timeOfDay{22, 0}, timeOfDay{7, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inQuietHours(tt.now, tt.start, tt.end); got != tt.want {
				t.Errorf("inQuietHours = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuietHoursActive(t *testing.T) {
	prefs := types.DefaultAlertPreferences("usr_1")
	prefs.QuietHoursStart = "22:00"
	prefs.QuietHoursEnd = "07:00"
	prefs.Timezone = "Asia/Tokyo"

	// 14:30 UTC = 23:30 JST, inside the overnight window.
	active, err := quietHoursActive(prefs, time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !active {
		t.Error("23:30 JST should be inside 22:00-07:00")
	}

	// 03:00 UTC = 12:00 JST, outside.
	active, err = quietHoursActive(prefs, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Error("12:00 JST should be outside 22:00-07:00")
	}
}

func TestQuietHoursActive_NotConfigured(t *testing.T) {
	prefs := types.DefaultAlertPreferences("usr_1")
	active, err := quietHoursActive(prefs, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Error("unset quiet hours must never suppress")
	}
}

func TestQuietHoursActive_InvalidConfig(t *testing.T) {
	prefs := types.DefaultAlertPreferences("usr_1")
	prefs.QuietHoursStart = "22:00"
	prefs.QuietHoursEnd = "07:00"
	prefs.Timezone = "Not/AZone"

	if _, err := quietHoursActive(prefs, time.Now()); err == nil {
		t.Error("invalid timezone should surface an error for the caller to fail open on")
	}
}
