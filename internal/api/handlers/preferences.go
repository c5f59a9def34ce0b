package handlers

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/core"
	"rainbowwatch/internal/types"
)

// PrefsStore reads and writes user alert preferences.
type PrefsStore interface {
	Get(ctx context.Context, userID string) (types.UserAlertPreferences, error)
	Upsert(ctx context.Context, p *types.UserAlertPreferences) error
}

// PreferencesHandler serves the alert-preferences endpoints.
type PreferencesHandler struct {
	prefs PrefsStore
}

// NewPreferencesHandler creates a PreferencesHandler.
func NewPreferencesHandler(prefs PrefsStore) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs}
}

// RegisterRoutes mounts the preference endpoints under /v1.
func (h *PreferencesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users/me/alert-preferences", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
	})
}

// updatePreferencesRequest carries a partial preferences update. Pointer
// fields distinguish "not provided" from zero values; omitted fields keep
// their current value.
type updatePreferencesRequest struct {
	RainbowAlerts   *bool   `json:"rainbow_alerts"`
	Likes           *bool   `json:"likes"`
	Comments        *bool   `json:"comments"`
	System          *bool   `json:"system"`
	AlertRadiusKm   *int    `json:"alert_radius_km"`
	QuietHoursStart *string `json:"quiet_hours_start"`
	QuietHoursEnd   *string `json:"quiet_hours_end"`
	Timezone        *string `json:"timezone"`
}

// HandleGet serves GET /v1/users/me/alert-preferences. Users who never saved
// preferences get the defaults.
func (h *PreferencesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	prefs, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: prefs})
}

// HandleUpdate serves PUT /v1/users/me/alert-preferences as a merge update:
// provided fields replace, omitted fields persist.
func (h *PreferencesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req updatePreferencesRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	prefs, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	applyUpdate(&prefs, req)
	if err := validatePreferences(prefs); err != nil {
		core.Error(w, r, err)
		return
	}

	prefs.UserID = userID
	if err := h.prefs.Upsert(r.Context(), &prefs); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: prefs})
}

func applyUpdate(prefs *types.UserAlertPreferences, req updatePreferencesRequest) {
	if req.RainbowAlerts != nil {
		prefs.RainbowAlerts = *req.RainbowAlerts
	}
	if req.Likes != nil {
		prefs.Likes = *req.Likes
	}
	if req.Comments != nil {
		prefs.Comments = *req.Comments
	}
	if req.System != nil {
		prefs.System = *req.System
	}
	if req.AlertRadiusKm != nil {
		prefs.AlertRadiusKm = *req.AlertRadiusKm
	}
	if req.QuietHoursStart != nil {
		prefs.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		prefs.QuietHoursEnd = *req.QuietHoursEnd
	}
	if req.Timezone != nil {
		prefs.Timezone = *req.Timezone
	}
}

var quietHoursPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// validatePreferences enforces the preference invariants: radius from the
// allowed tier set, quiet hours set as a pair of HH:MM bounds, and an IANA
// timezone whenever quiet hours are configured.
func validatePreferences(prefs types.UserAlertPreferences) error {
	if !types.ValidAlertRadiusKm(prefs.AlertRadiusKm) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRadius,
			"alert radius must be one of the supported tiers", nil,
			map[string]any{"allowed_km": types.AllowedAlertRadiiKm})
	}

	start, end := prefs.QuietHoursStart, prefs.QuietHoursEnd
	if (start == "") != (end == "") {
		return types.NewAppError(types.ErrCodeValidationInvalidQuietHrs,
			"quiet hours start and end must be set together", nil)
	}
	if start != "" {
		if !quietHoursPattern.MatchString(start) || !quietHoursPattern.MatchString(end) {
			return types.NewAppError(types.ErrCodeValidationInvalidQuietHrs,
				"quiet hours must be HH:MM in 24-hour time", nil)
		}
	}

	if prefs.Timezone != "" {
		if _, err := time.LoadLocation(prefs.Timezone); err != nil {
			return types.NewAppError(types.ErrCodeValidationInvalidTimezone,
				"timezone must be a valid IANA zone name", err)
		}
	} else if start != "" {
		return types.NewAppError(types.ErrCodeValidationInvalidTimezone,
			"timezone is required when quiet hours are set", nil)
	}

	return nil
}

// requireUser extracts the authenticated user from the request context.
func requireUser(r *http.Request) (string, error) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		return "", types.NewAppError(types.ErrCodeNotFoundUser,
			"request has no user identity", nil)
	}
	return userID, nil
}
