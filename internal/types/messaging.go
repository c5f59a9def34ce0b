package types

import (
	"time"
)

// CaptureJobMessage is the SQS payload that triggers the weather capture
// coordinator for a newly created sighting. JSON tags use snake_case to match
// the payloads produced by the upload flow.
type CaptureJobMessage struct {
	SightingID string    `json:"sighting_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Retry state: carried across the SQS publish-subscribe cycle and
	// incremented by the worker on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	TraceID string `json:"trace_id"`
}

// ScheduledNotificationMessage is the SQS payload for a deferred
// notification. DeliverAt may exceed the queue's maximum delay, in which case
// the worker re-enqueues the message with a fresh delay until it is due.
type ScheduledNotificationMessage struct {
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Payload   map[string]any   `json:"payload"`
	DeliverAt time.Time        `json:"deliver_at"`

	TraceID string `json:"trace_id"`
}

// MonitorScanMessage triggers a single monitoring scan cycle. An empty
// LocationIDs list means "scan every compiled location".
type MonitorScanMessage struct {
	LocationIDs []string  `json:"location_ids,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id"`
}
