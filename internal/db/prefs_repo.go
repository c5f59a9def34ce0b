package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"rainbowwatch/internal/types"
)

// PreferencesRepository provides data access for the user_alert_preferences
// table. A user with no saved row gets the compiled defaults.
type PreferencesRepository struct {
	db DBTX
}

// NewPreferencesRepository creates a new PreferencesRepository backed by the
// given database connection (pool or transaction).
func NewPreferencesRepository(db DBTX) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Get returns the user's alert preferences, falling back to defaults when
// the user has never saved any.
func (r *PreferencesRepository) Get(ctx context.Context, userID string) (types.UserAlertPreferences, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, rainbow_alerts, likes, comments, system,
		        alert_radius_km, COALESCE(quiet_hours_start, ''), COALESCE(quiet_hours_end, ''),
		        timezone, updated_at
		 FROM user_alert_preferences
		 WHERE user_id = $1`,
		userID,
	)

	var p types.UserAlertPreferences
	err := row.Scan(
		&p.UserID, &p.RainbowAlerts, &p.Likes, &p.Comments, &p.System,
		&p.AlertRadiusKm, &p.QuietHoursStart, &p.QuietHoursEnd,
		&p.Timezone, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.DefaultAlertPreferences(userID), nil
		}
		return types.UserAlertPreferences{}, types.NewAppError(types.ErrCodeInternalDB, "failed to get alert preferences", err)
	}
	return p, nil
}

// GetMany returns preferences for a batch of users. Users with no saved row
// are returned with defaults so the caller always gets a complete map.
func (r *PreferencesRepository) GetMany(ctx context.Context, userIDs []string) (map[string]types.UserAlertPreferences, error) {
	prefs := make(map[string]types.UserAlertPreferences, len(userIDs))
	for _, id := range userIDs {
		prefs[id] = types.DefaultAlertPreferences(id)
	}
	if len(userIDs) == 0 {
		return prefs, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, rainbow_alerts, likes, comments, system,
		        alert_radius_km, COALESCE(quiet_hours_start, ''), COALESCE(quiet_hours_end, ''),
		        timezone, updated_at
		 FROM user_alert_preferences
		 WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to batch-get alert preferences", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p types.UserAlertPreferences
		if err := rows.Scan(
			&p.UserID, &p.RainbowAlerts, &p.Likes, &p.Comments, &p.System,
			&p.AlertRadiusKm, &p.QuietHoursStart, &p.QuietHoursEnd,
			&p.Timezone, &p.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert preferences", err)
		}
		prefs[p.UserID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "alert preferences iteration failed", err)
	}
	return prefs, nil
}

// Upsert writes the user's alert preferences.
func (r *PreferencesRepository) Upsert(ctx context.Context, p *types.UserAlertPreferences) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO user_alert_preferences
		 (user_id, rainbow_alerts, likes, comments, system,
		  alert_radius_km, quiet_hours_start, quiet_hours_end, timezone, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   rainbow_alerts = EXCLUDED.rainbow_alerts,
		   likes = EXCLUDED.likes,
		   comments = EXCLUDED.comments,
		   system = EXCLUDED.system,
		   alert_radius_km = EXCLUDED.alert_radius_km,
		   quiet_hours_start = EXCLUDED.quiet_hours_start,
		   quiet_hours_end = EXCLUDED.quiet_hours_end,
		   timezone = EXCLUDED.timezone,
		   updated_at = NOW()
		 RETURNING updated_at`,
		p.UserID, p.RainbowAlerts, p.Likes, p.Comments, p.System,
		p.AlertRadiusKm, nilIfEmpty(p.QuietHoursStart), nilIfEmpty(p.QuietHoursEnd), p.Timezone,
	)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert alert preferences", err)
	}
	return nil
}
