package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/core"
	"rainbowwatch/internal/types"
)

type mockSightingReader struct {
	sightings map[string]*types.Sighting
}

func (m *mockSightingReader) GetByID(_ context.Context, id string) (*types.Sighting, error) {
	if s, ok := m.sightings[id]; ok {
		return s, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSighting, "sighting not found", nil)
}

type mockCaptureEnqueuer struct {
	jobs []types.CaptureJobMessage
	err  error
}

func (m *mockCaptureEnqueuer) EnqueueCapture(_ context.Context, msg types.CaptureJobMessage) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, msg)
	return nil
}

type mockScheduler struct {
	scheduled []types.ScheduledNotificationMessage
	err       error
}

func (m *mockScheduler) ScheduleNotification(_ context.Context, msg types.ScheduledNotificationMessage) error {
	if m.err != nil {
		return m.err
	}
	m.scheduled = append(m.scheduled, msg)
	return nil
}

func serveInternal(sightings *mockSightingReader, capture *mockCaptureEnqueuer, scheduler *mockScheduler, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewInternalHandler(sightings, capture, scheduler, core.NewValidator()).RegisterRoutes(r)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(types.WithRequestID(req.Context(), "req_internal"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTriggerCapture(t *testing.T) {
	sightings := &mockSightingReader{sightings: map[string]*types.Sighting{
		"sig_1": {ID: "sig_1", UserID: "usr_1"},
	}}
	capture := &mockCaptureEnqueuer{}

	rec := serveInternal(sightings, capture, &mockScheduler{},
		http.MethodPost, "/internal/sightings/sig_1/capture", "")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}
	if len(capture.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(capture.jobs))
	}
	job := capture.jobs[0]
	if job.SightingID != "sig_1" {
		t.Errorf("sighting id = %s, want sig_1", job.SightingID)
	}
	if job.TraceID != "req_internal" {
		t.Errorf("trace id = %s, want the request id carried through", job.TraceID)
	}
}

func TestTriggerCapture_UnknownSighting(t *testing.T) {
	capture := &mockCaptureEnqueuer{}
	rec := serveInternal(&mockSightingReader{}, capture, &mockScheduler{},
		http.MethodPost, "/internal/sightings/sig_ghost/capture", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(capture.jobs) != 0 {
		t.Error("no job may be enqueued for a missing sighting")
	}
}

func TestScheduleNotification(t *testing.T) {
	scheduler := &mockScheduler{}
	body := `{"user_id":"usr_1","type":"system","title":"Maintenance","body":"Tonight 02:00 JST","deliver_at":"2026-09-01T12:00:00+09:00"}`

	rec := serveInternal(&mockSightingReader{}, &mockCaptureEnqueuer{}, scheduler,
		http.MethodPost, "/internal/notifications/schedule", body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("scheduled = %d, want 1", len(scheduler.scheduled))
	}

	msg := scheduler.scheduled[0]
	if msg.Type != types.NotificationSystem {
		t.Errorf("type = %s, want system", msg.Type)
	}
	if msg.DeliverAt.Location() != time.UTC {
		t.Errorf("deliver at must be normalized to UTC, got %v", msg.DeliverAt)
	}
	want := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	if !msg.DeliverAt.Equal(want) {
		t.Errorf("deliver at = %v, want %v", msg.DeliverAt, want)
	}
}

func TestScheduleNotification_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{"type":"system","title":"t","body":"b","deliver_at":"2026-09-01T00:00:00Z"}`},
		{"missing title", `{"user_id":"usr_1","type":"system","body":"b","deliver_at":"2026-09-01T00:00:00Z"}`},
		{"missing deliver_at", `{"user_id":"usr_1","type":"system","title":"t","body":"b"}`},
		{"missing type", `{"user_id":"usr_1","title":"t","body":"b","deliver_at":"2026-09-01T00:00:00Z"}`},
		{"unknown type", `{"user_id":"usr_1","type":"carrier_pigeon","title":"t","body":"b","deliver_at":"2026-09-01T00:00:00Z"}`},
		{"empty body", ``},
		{"unknown field", `{"user_id":"usr_1","type":"system","title":"t","body":"b","deliver_at":"2026-09-01T00:00:00Z","priority":9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheduler := &mockScheduler{}
			rec := serveInternal(&mockSightingReader{}, &mockCaptureEnqueuer{}, scheduler,
				http.MethodPost, "/internal/notifications/schedule", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(scheduler.scheduled) != 0 {
				t.Error("invalid requests must not be scheduled")
			}
		})
	}
}

func TestScheduleNotification_ReportsFailingField(t *testing.T) {
	scheduler := &mockScheduler{}
	body := `{"user_id":"usr_1","type":"system","title":"t","body":"b"}`

	rec := serveInternal(&mockSightingReader{}, &mockCaptureEnqueuer{}, scheduler,
		http.MethodPost, "/internal/notifications/schedule", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Details["field"] != "DeliverAt" {
		t.Errorf("failing field = %v, want DeliverAt", resp.Error.Details["field"])
	}
	if resp.Error.Details["rule"] != "required" {
		t.Errorf("rule = %v, want required", resp.Error.Details["rule"])
	}
}

func TestScheduleNotification_SchedulerErrorPropagates(t *testing.T) {
	scheduler := &mockScheduler{
		err: types.NewAppError(types.ErrCodeValidationPastDelivery, "delivery time is in the past", nil),
	}
	body := `{"user_id":"usr_1","type":"system","title":"t","body":"b","deliver_at":"2020-01-01T00:00:00Z"}`

	rec := serveInternal(&mockSightingReader{}, &mockCaptureEnqueuer{}, scheduler,
		http.MethodPost, "/internal/notifications/schedule", body)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != string(types.ErrCodeValidationPastDelivery) {
		t.Errorf("code = %s, want %s", resp.Error.Code, types.ErrCodeValidationPastDelivery)
	}
}
