// Package alerts implements the notification dispatch engine: the push
// pipeline (quiet hours, per-type preferences, in-app persistence,
// multi-platform device fan-out), rainbow alert targeting (radius filter and
// per-user throttling), social triggers, and deferred scheduling.
//
// Per-device and per-user failures are modeled as data in result tallies,
// never as errors: one dead token must not block a hundred healthy ones.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"rainbowwatch/internal/geo"
	"rainbowwatch/internal/types"
)

const (
	// userThrottleTTL is the per-user rainbow alert throttle window,
	// independent from the per-location monitor throttle.
	userThrottleTTL = 2 * time.Hour

	// commentPreviewLimit caps the comment text echoed in a notification
	// body.
	commentPreviewLimit = 50

	// fanOutConcurrency bounds concurrent device sends per dispatch.
	fanOutConcurrency = 8
)

// Skip reasons reported in dispatch results.
const (
	SkipReasonQuietHours  = "quiet_hours"
	SkipReasonPreferences = "preference_disabled"
	SkipReasonRadius      = "outside_alert_radius"
	SkipReasonThrottled   = "recently_alerted"
	SkipReasonSelf        = "self_notification"
)

// DeviceStore is the read interface for active push endpoints.
type DeviceStore interface {
	ListActiveForUser(ctx context.Context, userID string) ([]types.DeviceEndpoint, error)
}

// PrefsStore is the read interface for user alert preferences.
type PrefsStore interface {
	Get(ctx context.Context, userID string) (types.UserAlertPreferences, error)
	GetMany(ctx context.Context, userIDs []string) (map[string]types.UserAlertPreferences, error)
}

// NotificationStore persists the in-app copy of dispatched notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *types.NotificationRecord) error
}

// LocationSource resolves each user's last known location from their most
// recent sighting.
type LocationSource interface {
	LatestLocationsForUsers(ctx context.Context, userIDs []string) (map[string]types.Location, error)
}

// Throttle is the best-effort TTL claim used for per-user alert dedup.
type Throttle interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DeferredQueue enqueues a notification for future delivery.
type DeferredQueue interface {
	EnqueueScheduled(ctx context.Context, msg types.ScheduledNotificationMessage) error
}

// PushResult is the outcome of one SendPush call. Skipped is empty when the
// pipeline reached fan-out.
type PushResult struct {
	Skipped        string `json:"skipped,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	DevicesSent    int    `json:"devices_sent"`
	DevicesFailed  int    `json:"devices_failed"`
}

// SendOptions tunes a single SendPush call.
type SendOptions struct {
	// OverrideQuietHours delivers even inside the user's quiet window.
	// Used for notifications the user explicitly scheduled.
	OverrideQuietHours bool

	// SkipInApp suppresses the persisted in-app copy.
	SkipInApp bool
}

// RainbowAlert describes one favorable-location alert to fan out.
type RainbowAlert struct {
	LocationID     string                  `json:"location_id"`
	LocationName   string                  `json:"location_name"`
	Location       types.Location          `json:"location"`
	Direction      types.CardinalDirection `json:"direction"`
	Probability    int                     `json:"probability"`
	Duration       time.Duration           `json:"duration"`
	WeatherSummary string                  `json:"weather_summary,omitempty"`
}

// RainbowAlertSummary aggregates a rainbow alert fan-out across users.
type RainbowAlertSummary struct {
	Candidates int            `json:"candidates"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Skipped    map[string]int `json:"skipped"`
}

// Dispatcher is the notification dispatch engine.
type Dispatcher struct {
	devices  DeviceStore
	prefs    PrefsStore
	records  NotificationStore
	location LocationSource
	throttle Throttle
	deferred DeferredQueue
	senders  SenderRegistry
	metrics  DeliveryMetrics
	clock    types.Clock
	logger   *slog.Logger
}

// DispatcherConfig holds the dependencies for creating a Dispatcher.
type DispatcherConfig struct {
	Devices  DeviceStore
	Prefs    PrefsStore
	Records  NotificationStore
	Location LocationSource
	Throttle Throttle
	Deferred DeferredQueue
	Senders  SenderRegistry
	Metrics  DeliveryMetrics
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given dependencies.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopDeliveryMetrics{}
	}
	return &Dispatcher{
		devices:  cfg.Devices,
		prefs:    cfg.Prefs,
		records:  cfg.Records,
		location: cfg.Location,
		throttle: cfg.Throttle,
		deferred: cfg.Deferred,
		senders:  cfg.Senders,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// SendPush runs the full dispatch pipeline for one user: quiet-hours check
// in the user's timezone, per-type preference gate, in-app persistence, and
// fan-out to every active device. Per-device failures land in the result
// tally and never fail the call.
func (d *Dispatcher) SendPush(ctx context.Context, userID, title, body string, data map[string]any, typ types.NotificationType, opts SendOptions) (*PushResult, error) {
	prefs, err := d.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return d.sendPushWithPrefs(ctx, userID, title, body, data, typ, opts, prefs)
}

// sendPushWithPrefs is SendPush with preferences already resolved, so batch
// callers avoid a per-user preference query.
func (d *Dispatcher) sendPushWithPrefs(ctx context.Context, userID, title, body string, data map[string]any, typ types.NotificationType, opts SendOptions, prefs types.UserAlertPreferences) (*PushResult, error) {
	if !opts.OverrideQuietHours {
		active, qerr := quietHoursActive(prefs, d.clock.Now())
		if qerr != nil {
			// Fail open: a broken quiet-hours config must not silence the user.
			d.logger.WarnContext(ctx, "quiet hours evaluation failed, delivering anyway",
				"user_id", userID,
				"error", qerr,
			)
		} else if active {
			return &PushResult{Skipped: SkipReasonQuietHours}, nil
		}
	}

	if !prefs.TypeEnabled(typ) {
		return &PushResult{Skipped: SkipReasonPreferences}, nil
	}

	result := &PushResult{}

	if !opts.SkipInApp {
		record := &types.NotificationRecord{
			UserID:  userID,
			Type:    typ,
			Title:   title,
			Body:    body,
			Payload: data,
		}
		if err := d.records.Create(ctx, record); err != nil {
			// Device delivery still proceeds; the in-app copy is best-effort.
			d.logger.ErrorContext(ctx, "failed to persist in-app notification",
				"user_id", userID,
				"type", string(typ),
				"error", err,
			)
		} else {
			result.NotificationID = record.ID
		}
	}

	devices, err := d.devices.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutConcurrency)

	for _, device := range devices {
		g.Go(func() error {
			sender, ok := d.senders[device.Platform]
			if !ok {
				d.logger.WarnContext(gctx, "no sender for platform",
					"platform", string(device.Platform),
					"device_id", device.ID,
				)
				failed.Add(1)
				d.metrics.RecordDelivery(gctx, device.Platform, MetricResultFailure)
				return nil
			}

			if _, serr := sender.Send(gctx, device.Token, title, body, data); serr != nil {
				d.logger.WarnContext(gctx, "device send failed",
					"user_id", userID,
					"device_id", device.ID,
					"platform", string(device.Platform),
					"error", serr,
				)
				failed.Add(1)
				d.metrics.RecordDelivery(gctx, device.Platform, MetricResultFailure)
				return nil
			}
			sent.Add(1)
			d.metrics.RecordDelivery(gctx, device.Platform, MetricResultSuccess)
			return nil
		})
	}
	_ = g.Wait()

	result.DevicesSent = int(sent.Load())
	result.DevicesFailed = int(failed.Load())
	return result, nil
}

// SendRainbowAlert fans a favorable-location alert out to candidate users.
// A user is skipped when their last known location is outside their
// configured alert radius (users with no known location fail open), or when
// they already received a rainbow alert in the throttle window.
func (d *Dispatcher) SendRainbowAlert(ctx context.Context, candidates []string, alert RainbowAlert) (*RainbowAlertSummary, error) {
	summary := &RainbowAlertSummary{
		Candidates: len(candidates),
		Skipped:    map[string]int{},
	}
	if len(candidates) == 0 {
		return summary, nil
	}

	prefs, err := d.prefs.GetMany(ctx, candidates)
	if err != nil {
		return nil, err
	}
	locations, err := d.location.LatestLocationsForUsers(ctx, candidates)
	if err != nil {
		return nil, err
	}

	title := "Rainbow alert"
	body := rainbowAlertBody(alert)
	data := map[string]any{
		"location_id":   alert.LocationID,
		"location_name": alert.LocationName,
		"lat":           alert.Location.Lat,
		"lng":           alert.Location.Lng,
		"direction":     string(alert.Direction),
		"probability":   alert.Probability,
	}

	for _, userID := range candidates {
		userPrefs := prefs[userID]

		// Radius filter, fail-open for users with no known location.
		if loc, known := locations[userID]; known {
			if geo.HaversineKm(loc, alert.Location) > float64(userPrefs.AlertRadiusKm) {
				summary.Skipped[SkipReasonRadius]++
				continue
			}
		}

		// Per-user throttle, claimed before dispatch so a crash mid-send
		// errs toward silence rather than duplicates.
		claimed, terr := d.throttle.Claim(ctx, userAlertThrottleKey(userID), userThrottleTTL)
		if terr != nil {
			d.logger.WarnContext(ctx, "user throttle claim failed, skipping",
				"user_id", userID,
				"error", terr,
			)
			summary.Failed++
			continue
		}
		if !claimed {
			summary.Skipped[SkipReasonThrottled]++
			continue
		}

		result, perr := d.sendPushWithPrefs(ctx, userID, title, body, data, types.NotificationRainbowAlert, SendOptions{}, userPrefs)
		if perr != nil {
			d.logger.ErrorContext(ctx, "rainbow alert dispatch failed",
				"user_id", userID,
				"location_id", alert.LocationID,
				"error", perr,
			)
			summary.Failed++
			continue
		}
		if result.Skipped != "" {
			summary.Skipped[result.Skipped]++
			continue
		}
		summary.Sent++
	}

	d.logger.InfoContext(ctx, "rainbow alert fan-out complete",
		"location_id", alert.LocationID,
		"candidates", summary.Candidates,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

// SendLikeNotification notifies a sighting owner that someone liked their
// photo. Self-likes are suppressed.
func (d *Dispatcher) SendLikeNotification(ctx context.Context, ownerID, actorID, actorName, sightingID string) (*PushResult, error) {
	if ownerID == actorID {
		return &PushResult{Skipped: SkipReasonSelf}, nil
	}
	body := fmt.Sprintf("%s liked your rainbow photo", actorName)
	data := map[string]any{
		"sighting_id": sightingID,
		"actor_id":    actorID,
	}
	return d.SendPush(ctx, ownerID, "New like", body, data, types.NotificationLike, SendOptions{})
}

// SendCommentNotification notifies a sighting owner of a new comment, with
// the comment text truncated for preview. Self-comments are suppressed.
func (d *Dispatcher) SendCommentNotification(ctx context.Context, ownerID, actorID, actorName, sightingID, comment string) (*PushResult, error) {
	if ownerID == actorID {
		return &PushResult{Skipped: SkipReasonSelf}, nil
	}
	body := fmt.Sprintf("%s commented: %s", actorName, truncate(comment, commentPreviewLimit))
	data := map[string]any{
		"sighting_id": sightingID,
		"actor_id":    actorID,
	}
	return d.SendPush(ctx, ownerID, "New comment", body, data, types.NotificationComment, SendOptions{})
}

// ScheduleNotification validates and enqueues a deferred notification.
// DeliverAt must be strictly in the future.
func (d *Dispatcher) ScheduleNotification(ctx context.Context, msg types.ScheduledNotificationMessage) error {
	if !msg.DeliverAt.After(d.clock.Now()) {
		return types.NewAppError(types.ErrCodeValidationPastDelivery,
			"deliver_at must be in the future", nil)
	}
	return d.deferred.EnqueueScheduled(ctx, msg)
}

// rainbowAlertBody builds the user-facing alert text: direction, rounded
// probability, and the optional duration and weather summary.
func rainbowAlertBody(alert RainbowAlert) string {
	body := fmt.Sprintf("Look %s from %s: %d%% rainbow likelihood",
		directionLabel(alert.Direction), alert.LocationName, alert.Probability)
	if alert.Duration > 0 {
		body += fmt.Sprintf(" for about %d min", int(alert.Duration.Minutes()))
	}
	if alert.WeatherSummary != "" {
		body += " (" + alert.WeatherSummary + ")"
	}
	return body
}

func directionLabel(dir types.CardinalDirection) string {
	return string(dir)
}

func userAlertThrottleKey(userID string) string {
	return "alert:user:" + userID + ":" + string(types.NotificationRainbowAlert)
}

// truncate shortens s to at most limit runes, appending an ellipsis when
// anything was cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
