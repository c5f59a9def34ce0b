package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/core"
	"rainbowwatch/internal/types"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationStore reads and updates the in-app notification feed.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]types.NotificationRecord, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// NotificationsHandler serves the notification feed endpoints.
type NotificationsHandler struct {
	store NotificationStore
}

// NewNotificationsHandler creates a NotificationsHandler.
func NewNotificationsHandler(store NotificationStore) *NotificationsHandler {
	return &NotificationsHandler{store: store}
}

// RegisterRoutes mounts the notification endpoints under /v1.
func (h *NotificationsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/{notificationID}/read", h.HandleMarkRead)
	})
}

type notificationListResponse struct {
	Notifications []types.NotificationRecord `json:"notifications"`
	UnreadCount   int                        `json:"unread_count"`
	Limit         int                        `json:"limit"`
	Offset        int                        `json:"offset"`
}

// HandleList serves GET /v1/notifications with limit/offset paging, newest
// first, plus the unread count for badge rendering.
func (h *NotificationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit, offset, err := parsePaging(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	records, err := h.store.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	unread, err := h.store.CountUnread(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if records == nil {
		records = []types.NotificationRecord{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: notificationListResponse{
		Notifications: records,
		UnreadCount:   unread,
		Limit:         limit,
		Offset:        offset,
	}})
}

// HandleMarkRead serves POST /v1/notifications/{notificationID}/read. The
// update is scoped to the caller, so marking another user's notification
// reads as not found.
func (h *NotificationsHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	notificationID := chi.URLParam(r, "notificationID")
	if notificationID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"notification id is required", nil))
		return
	}

	if err := h.store.MarkRead(r.Context(), userID, notificationID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"id":   notificationID,
		"read": true,
	}})
}

func parsePaging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultNotificationLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return 0, 0, types.NewAppError(types.ErrCodeValidationLimitExceeded,
				"limit must be a positive integer", err)
		}
		if limit > maxNotificationLimit {
			limit = maxNotificationLimit
		}
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, types.NewAppError(types.ErrCodeValidationLimitExceeded,
				"offset must be a non-negative integer", err)
		}
	}
	return limit, offset, nil
}
