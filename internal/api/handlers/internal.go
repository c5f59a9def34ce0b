package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/core"
	"rainbowwatch/internal/types"
)

// CaptureEnqueuer publishes capture jobs for new sightings.
type CaptureEnqueuer interface {
	EnqueueCapture(ctx context.Context, msg types.CaptureJobMessage) error
}

// NotificationScheduler validates and enqueues deferred notifications.
type NotificationScheduler interface {
	ScheduleNotification(ctx context.Context, msg types.ScheduledNotificationMessage) error
}

// InternalHandler serves the service-to-service trigger endpoints called by
// the upload flow and by trusted backend jobs. These routes sit behind the
// private load balancer, not the public edge.
type InternalHandler struct {
	sightings SightingReader
	capture   CaptureEnqueuer
	scheduler NotificationScheduler
	validator *core.Validator
}

// NewInternalHandler creates an InternalHandler.
func NewInternalHandler(sightings SightingReader, capture CaptureEnqueuer, scheduler NotificationScheduler, v *core.Validator) *InternalHandler {
	if v == nil {
		v = core.NewValidator()
	}
	return &InternalHandler{sightings: sightings, capture: capture, scheduler: scheduler, validator: v}
}

// RegisterRoutes mounts the internal endpoints under /v1.
func (h *InternalHandler) RegisterRoutes(r chi.Router) {
	r.Route("/internal", func(r chi.Router) {
		r.Post("/sightings/{sightingID}/capture", h.HandleTriggerCapture)
		r.Post("/notifications/schedule", h.HandleScheduleNotification)
	})
}

// HandleTriggerCapture serves POST /v1/internal/sightings/{sightingID}/capture.
// The upload flow calls it after a sighting row is committed; the sighting
// must exist before a job is enqueued so the worker never spins on phantoms.
func (h *InternalHandler) HandleTriggerCapture(w http.ResponseWriter, r *http.Request) {
	sightingID := chi.URLParam(r, "sightingID")
	if sightingID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"sighting id is required", nil))
		return
	}

	sighting, err := h.sightings.GetByID(r.Context(), sightingID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	msg := types.CaptureJobMessage{
		SightingID: sighting.ID,
		TraceID:    types.GetRequestID(r.Context()),
	}
	if err := h.capture.EnqueueCapture(r.Context(), msg); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]any{
		"sighting_id": sighting.ID,
		"enqueued":    true,
	}})
}

// scheduleNotificationRequest is the request body for deferred notifications.
type scheduleNotificationRequest struct {
	UserID    string         `json:"user_id" validate:"required"`
	Type      string         `json:"type" validate:"required"`
	Title     string         `json:"title" validate:"required"`
	Body      string         `json:"body" validate:"required"`
	Payload   map[string]any `json:"payload"`
	DeliverAt time.Time      `json:"deliver_at" validate:"required"`
}

// HandleScheduleNotification serves POST /v1/internal/notifications/schedule.
func (h *InternalHandler) HandleScheduleNotification(w http.ResponseWriter, r *http.Request) {
	var req scheduleNotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	typ := types.NotificationType(req.Type)
	if !typ.Valid() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"unknown notification type", nil, map[string]any{"type": req.Type}))
		return
	}

	msg := types.ScheduledNotificationMessage{
		UserID:    req.UserID,
		Type:      typ,
		Title:     req.Title,
		Body:      req.Body,
		Payload:   req.Payload,
		DeliverAt: req.DeliverAt.UTC(),
		TraceID:   types.GetRequestID(r.Context()),
	}
	if err := h.scheduler.ScheduleNotification(r.Context(), msg); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: map[string]any{
		"user_id":    msg.UserID,
		"deliver_at": msg.DeliverAt,
		"scheduled":  true,
	}})
}
