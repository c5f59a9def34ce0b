package db

import (
	"context"

	"rainbowwatch/internal/types"
)

// DeviceRepository provides read access to the device_endpoints table. The
// device-registration flow owns the lifecycle; the dispatcher only reads
// active endpoints for fan-out.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository creates a new DeviceRepository backed by the given
// database connection (pool or transaction).
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// ListActiveForUser returns the user's active push endpoints.
func (r *DeviceRepository) ListActiveForUser(ctx context.Context, userID string) ([]types.DeviceEndpoint, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, platform, token, active, created_at
		 FROM device_endpoints
		 WHERE user_id = $1 AND active = TRUE`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list device endpoints", err)
	}
	defer rows.Close()

	var devices []types.DeviceEndpoint
	for rows.Next() {
		var d types.DeviceEndpoint
		var platform string
		if err := rows.Scan(&d.ID, &d.UserID, &platform, &d.Token, &d.Active, &d.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan device endpoint", err)
		}
		d.Platform = types.Platform(platform)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "device endpoint iteration failed", err)
	}
	return devices, nil
}

// ListUserIDsWithActiveDevices returns the distinct set of users holding at
// least one active push endpoint. This is the candidate pool for broadcast
// alerts; users without a reachable device are filtered out up front.
func (r *DeviceRepository) ListUserIDsWithActiveDevices(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT user_id FROM device_endpoints WHERE active = TRUE`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alertable users", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user id", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "alertable user iteration failed", err)
	}
	return userIDs, nil
}
