package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/types"
)

type mockPrefsStore struct {
	prefs    map[string]types.UserAlertPreferences
	upserted *types.UserAlertPreferences
}

func (m *mockPrefsStore) Get(_ context.Context, userID string) (types.UserAlertPreferences, error) {
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return types.DefaultAlertPreferences(userID), nil
}

func (m *mockPrefsStore) Upsert(_ context.Context, p *types.UserAlertPreferences) error {
	m.upserted = p
	return nil
}

func prefsRequest(method, body, userID string) *http.Request {
	req := httptest.NewRequest(method, "/users/me/alert-preferences", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(types.WithUserID(req.Context(), userID))
	}
	return req
}

func servePrefs(store *mockPrefsStore, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewPreferencesHandler(store).RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not valid JSON: %v", err)
	}
	return resp.Error.Code
}

func TestPreferencesGet_DefaultsForNewUser(t *testing.T) {
	store := &mockPrefsStore{}
	rec := servePrefs(store, prefsRequest(http.MethodGet, "", "usr_1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data types.UserAlertPreferences `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Data.RainbowAlerts || resp.Data.AlertRadiusKm != 10 {
		t.Errorf("defaults = %+v, want rainbow alerts on with 10 km radius", resp.Data)
	}
}

func TestPreferencesGet_RequiresIdentity(t *testing.T) {
	rec := servePrefs(&mockPrefsStore{}, prefsRequest(http.MethodGet, "", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for anonymous request", rec.Code)
	}
}

func TestPreferencesUpdate_MergesPartialBody(t *testing.T) {
	store := &mockPrefsStore{prefs: map[string]types.UserAlertPreferences{
		"usr_1": {
			UserID:        "usr_1",
			RainbowAlerts: true,
			Likes:         true,
			Comments:      false,
			System:        true,
			AlertRadiusKm: 5,
			Timezone:      "Asia/Tokyo",
		},
	}}

	rec := servePrefs(store, prefsRequest(http.MethodPut, `{"alert_radius_km":25,"likes":false}`, "usr_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	got := store.upserted
	if got == nil {
		t.Fatal("update must persist")
	}
	if got.AlertRadiusKm != 25 || got.Likes {
		t.Errorf("provided fields not applied: %+v", got)
	}
	// Omitted fields keep their saved values.
	if !got.RainbowAlerts || got.Comments || got.Timezone != "Asia/Tokyo" {
		t.Errorf("omitted fields must persist: %+v", got)
	}
}

func TestPreferencesUpdate_RadiusTiers(t *testing.T) {
	for _, km := range types.AllowedAlertRadiiKm {
		store := &mockPrefsStore{}
		rec := servePrefs(store, prefsRequest(http.MethodPut, `{"alert_radius_km":`+strconv.Itoa(km)+`}`, "usr_1"))
		if rec.Code != http.StatusOK {
			t.Errorf("radius %d rejected with %d", km, rec.Code)
		}
	}

	rec := servePrefs(&mockPrefsStore{}, prefsRequest(http.MethodPut, `{"alert_radius_km":7}`, "usr_1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for off-tier radius", rec.Code)
	}
	if code := errorCode(t, rec); code != string(types.ErrCodeValidationInvalidRadius) {
		t.Errorf("code = %s, want %s", code, types.ErrCodeValidationInvalidRadius)
	}
}

func TestPreferencesUpdate_QuietHoursValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode types.ErrorCode
	}{
		{
			"start without end",
			`{"quiet_hours_start":"22:00"}`,
			types.ErrCodeValidationInvalidQuietHrs,
		},
		{
			"bad format",
			`{"quiet_hours_start":"10pm","quiet_hours_end":"07:00","timezone":"Asia/Tokyo"}`,
			types.ErrCodeValidationInvalidQuietHrs,
		},
		{
			"hour out of range",
			`{"quiet_hours_start":"24:00","quiet_hours_end":"07:00","timezone":"Asia/Tokyo"}`,
			types.ErrCodeValidationInvalidQuietHrs,
		},
		{
			"unknown timezone",
			`{"quiet_hours_start":"22:00","quiet_hours_end":"07:00","timezone":"Mars/Olympus"}`,
			types.ErrCodeValidationInvalidTimezone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := servePrefs(&mockPrefsStore{}, prefsRequest(http.MethodPut, tt.body, "usr_1"))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if code := errorCode(t, rec); code != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}

	// A valid overnight window with a timezone is accepted.
	rec := servePrefs(&mockPrefsStore{},
		prefsRequest(http.MethodPut, `{"quiet_hours_start":"22:00","quiet_hours_end":"07:00","timezone":"Asia/Tokyo"}`, "usr_1"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for valid quiet hours (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPreferencesUpdate_RejectsUnknownField(t *testing.T) {
	rec := servePrefs(&mockPrefsStore{}, prefsRequest(http.MethodPut, `{"volume":11}`, "usr_1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown field", rec.Code)
	}
}
