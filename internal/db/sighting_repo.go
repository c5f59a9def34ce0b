package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"rainbowwatch/internal/types"
)

// SightingRepository provides read access to the sightings table. Sightings
// are created by the upload flow; this pipeline never writes them.
type SightingRepository struct {
	db DBTX
}

// NewSightingRepository creates a new SightingRepository backed by the given
// database connection (pool or transaction).
func NewSightingRepository(db DBTX) *SightingRepository {
	return &SightingRepository{db: db}
}

// GetByID fetches a sighting by its ID. Returns a not_found AppError when
// the sighting does not exist (or has been deleted since the job was queued).
func (r *SightingRepository) GetByID(ctx context.Context, id string) (*types.Sighting, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, location_lat, location_lng, thumbnail_url, captured_at, created_at
		 FROM sightings
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)

	var s types.Sighting
	var thumbnail *string
	err := row.Scan(&s.ID, &s.UserID, &s.Location.Lat, &s.Location.Lng, &thumbnail, &s.CapturedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSighting, "sighting not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get sighting", err)
	}
	if thumbnail != nil {
		s.ThumbnailURL = *thumbnail
	}
	return &s, nil
}

// buildMapWhere assembles the shared WHERE clause for all map queries:
// bounding box plus optional date range and owner filter. It returns the
// clause (without the WHERE keyword) and its positional arguments.
func buildMapWhere(b types.Bounds, f types.MapFilters) (string, []any) {
	clauses := []string{
		"deleted_at IS NULL",
		"location_lat BETWEEN $1 AND $2",
		"location_lng BETWEEN $3 AND $4",
	}
	args := []any{b.South, b.North, b.West, b.East}

	if f.From != nil {
		args = append(args, *f.From)
		clauses = append(clauses, fmt.Sprintf("captured_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		clauses = append(clauses, fmt.Sprintf("captured_at <= $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

// MarkersInBounds returns lightweight marker records inside the bounding
// box, newest first, capped at limit.
func (r *SightingRepository) MarkersInBounds(ctx context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.MapMarker, error) {
	where, args := buildMapWhere(b, f)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, fmt.Sprintf(
		`SELECT id, location_lat, location_lng, COALESCE(thumbnail_url, ''), captured_at
		 FROM sightings
		 WHERE %s
		 ORDER BY captured_at DESC
		 LIMIT $%d`, where, len(args)),
		args...,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query markers", err)
	}
	defer rows.Close()

	markers := make([]types.MapMarker, 0, limit)
	for rows.Next() {
		var m types.MapMarker
		if err := rows.Scan(&m.ID, &m.Lat, &m.Lng, &m.ThumbnailURL, &m.CapturedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan marker", err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "marker row iteration failed", err)
	}
	return markers, nil
}

// PointsInBounds returns point geometry inside the bounding box for
// clustering and heatmap aggregation, capped at limit.
func (r *SightingRepository) PointsInBounds(ctx context.Context, b types.Bounds, f types.MapFilters, limit int) ([]types.SightingPoint, error) {
	where, args := buildMapWhere(b, f)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, fmt.Sprintf(
		`SELECT id, location_lat, location_lng, captured_at
		 FROM sightings
		 WHERE %s
		 ORDER BY captured_at DESC
		 LIMIT $%d`, where, len(args)),
		args...,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query points", err)
	}
	defer rows.Close()

	var points []types.SightingPoint
	for rows.Next() {
		var p types.SightingPoint
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.CapturedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan point", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "point row iteration failed", err)
	}
	return points, nil
}

// LatestLocationsForUsers returns each user's most recent sighting location.
// Users without any sighting are simply absent from the result map; the
// alert radius filter treats them as "location unknown" and fails open.
func (r *SightingRepository) LatestLocationsForUsers(ctx context.Context, userIDs []string) (map[string]types.Location, error) {
	if len(userIDs) == 0 {
		return map[string]types.Location{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT ON (user_id) user_id, location_lat, location_lng
		 FROM sightings
		 WHERE user_id = ANY($1) AND deleted_at IS NULL
		 ORDER BY user_id, captured_at DESC`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query user locations", err)
	}
	defer rows.Close()

	locations := make(map[string]types.Location, len(userIDs))
	for rows.Next() {
		var userID string
		var loc types.Location
		if err := rows.Scan(&userID, &loc.Lat, &loc.Lng); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user location", err)
		}
		locations[userID] = loc
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "user location iteration failed", err)
	}
	return locations, nil
}
