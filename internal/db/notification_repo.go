package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rainbowwatch/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// Records are created at dispatch time and mutated only via the read-flag
// update; this pipeline never deletes them.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by
// the given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification record. If the ID is empty, a prefixed
// UUID is generated.
func (r *NotificationRepository) Create(ctx context.Context, n *types.NotificationRecord) error {
	if n.ID == "" {
		n.ID = "notif_" + uuid.New().String()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, payload, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		 RETURNING created_at`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Body, n.Payload,
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]types.NotificationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, type, title, body, payload, read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var records []types.NotificationRecord
	for rows.Next() {
		var n types.NotificationRecord
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.Payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification", err)
		}
		n.Type = types.NotificationType(typ)
		records = append(records, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "notification iteration failed", err)
	}
	return records, nil
}

// MarkRead sets the read flag on a notification owned by the user. Returns a
// not_found AppError if the notification does not exist or belongs to
// someone else.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		notificationID, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", pgx.ErrNoRows)
	}
	return nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID,
	).Scan(&count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unread notifications", err)
	}
	return count, nil
}
