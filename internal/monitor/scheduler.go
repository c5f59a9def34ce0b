// Package monitor drives the periodic condition scan over the fixed
// monitoring locations. Each scan evaluates every requested location,
// throttles repeat alerts per location, and fans favorable results out
// through the notification dispatcher.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rainbowwatch/internal/alerts"
	"rainbowwatch/internal/rainbow"
	"rainbowwatch/internal/types"
)

// ConditionEvaluator scores current conditions at a coordinate.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, lat, lng float64, t time.Time) (*rainbow.Evaluation, error)
}

// Throttle suppresses repeat alerts for a location within a window.
type Throttle interface {
	Exists(ctx context.Context, key string) (bool, error)
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AlertSender fans a rainbow alert out to candidate users.
type AlertSender interface {
	SendRainbowAlert(ctx context.Context, candidates []string, alert alerts.RainbowAlert) (*alerts.RainbowAlertSummary, error)
}

// CandidateSource yields the users eligible to receive broadcast alerts.
type CandidateSource interface {
	ListUserIDsWithActiveDevices(ctx context.Context) ([]string, error)
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	Scanned    int `json:"scanned"`
	Throttled  int `json:"throttled"`
	Favorable  int `json:"favorable"`
	AlertsSent int `json:"alerts_sent"`
	Errors     int `json:"errors"`
}

// Scanner runs condition scans over the monitoring locations.
type Scanner struct {
	evaluator  ConditionEvaluator
	throttle   Throttle
	dispatcher AlertSender
	candidates CandidateSource
	ttl        time.Duration
	clock      types.Clock
	logger     *slog.Logger
}

// ScannerConfig carries the Scanner dependencies.
type ScannerConfig struct {
	Evaluator   ConditionEvaluator
	Throttle    Throttle
	Dispatcher  AlertSender
	Candidates  CandidateSource
	ThrottleTTL time.Duration
	Clock       types.Clock
	Logger      *slog.Logger
}

// NewScanner creates a Scanner with the given dependencies.
func NewScanner(cfg ScannerConfig) *Scanner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	ttl := cfg.ThrottleTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Scanner{
		evaluator:  cfg.Evaluator,
		throttle:   cfg.Throttle,
		dispatcher: cfg.Dispatcher,
		candidates: cfg.Candidates,
		ttl:        ttl,
		clock:      clock,
		logger:     logger,
	}
}

// RunScan evaluates the given location IDs (all compiled locations when the
// list is empty). Per-location failures are logged and counted; one broken
// location never aborts the scan.
func (s *Scanner) RunScan(ctx context.Context, locationIDs []string) (*ScanResult, error) {
	locations := s.resolve(locationIDs)
	result := &ScanResult{}

	var candidates []string
	candidatesLoaded := false

	for _, loc := range locations {
		result.Scanned++

		key := locationThrottleKey(loc.ID)
		throttled, err := s.throttle.Exists(ctx, key)
		if err != nil {
			// Fail open: a cache outage should degrade to repeat alerts,
			// not to silence.
			s.logger.WarnContext(ctx, "throttle check failed, continuing",
				"location_id", loc.ID,
				"error", err,
			)
		} else if throttled {
			result.Throttled++
			continue
		}

		eval, err := s.evaluator.Evaluate(ctx, loc.Lat, loc.Lng, s.clock.Now())
		if err != nil {
			result.Errors++
			s.logger.ErrorContext(ctx, "condition evaluation failed",
				"location_id", loc.ID,
				"error", err,
			)
			continue
		}
		if !eval.Favorable {
			continue
		}
		result.Favorable++

		claimed, err := s.throttle.Claim(ctx, key, s.ttl)
		if err != nil {
			s.logger.WarnContext(ctx, "throttle claim failed, dispatching anyway",
				"location_id", loc.ID,
				"error", err,
			)
		} else if !claimed {
			// Another scanner instance claimed between Exists and Claim.
			result.Throttled++
			continue
		}

		if !candidatesLoaded {
			candidates, err = s.candidates.ListUserIDsWithActiveDevices(ctx)
			if err != nil {
				return result, err
			}
			candidatesLoaded = true
		}

		summary, err := s.dispatcher.SendRainbowAlert(ctx, candidates, buildAlert(loc, eval))
		if err != nil {
			result.Errors++
			s.logger.ErrorContext(ctx, "rainbow alert dispatch failed",
				"location_id", loc.ID,
				"error", err,
			)
			continue
		}
		result.AlertsSent += summary.Sent
		s.logger.InfoContext(ctx, "rainbow alert dispatched",
			"location_id", loc.ID,
			"score", eval.Score,
			"direction", eval.Direction,
			"candidates", summary.Candidates,
			"sent", summary.Sent,
			"failed", summary.Failed,
		)
	}

	s.logger.InfoContext(ctx, "condition scan complete",
		"scanned", result.Scanned,
		"throttled", result.Throttled,
		"favorable", result.Favorable,
		"alerts_sent", result.AlertsSent,
		"errors", result.Errors,
	)
	return result, nil
}

// Run executes scans on a fixed interval until the context is cancelled.
// This is the self-scheduling fallback for deployments without an external
// trigger; an initial scan fires immediately.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunScan(ctx, nil); err != nil {
			s.logger.ErrorContext(ctx, "scan pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// resolve maps IDs to compiled locations, skipping unknown IDs with a log
// line. An empty input means the full compiled list.
func (s *Scanner) resolve(locationIDs []string) []types.MonitoringLocation {
	if len(locationIDs) == 0 {
		return Locations
	}
	locations := make([]types.MonitoringLocation, 0, len(locationIDs))
	for _, id := range locationIDs {
		loc, ok := LocationByID(id)
		if !ok {
			s.logger.Warn("unknown monitoring location requested", "location_id", id)
			continue
		}
		locations = append(locations, loc)
	}
	return locations
}

func buildAlert(loc types.MonitoringLocation, eval *rainbow.Evaluation) alerts.RainbowAlert {
	return alerts.RainbowAlert{
		LocationID:   loc.ID,
		LocationName: loc.Name,
		Location:     types.Location{Lat: loc.Lat, Lng: loc.Lng},
		Direction:    eval.Direction,
		Probability:  eval.Score,
		Duration:     rainbow.EstimateViewingDuration(*eval),
	}
}

func locationThrottleKey(locationID string) string {
	return fmt.Sprintf("alert:loc:%s:rainbow", locationID)
}
