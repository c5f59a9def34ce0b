package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"rainbowwatch/internal/config"
	"rainbowwatch/internal/types"
)

// PushSender is the per-platform push transport. Implementations are
// selected by a device's platform tag, so dispatch code never branches on
// platform directly.
type PushSender interface {
	// Platform returns the device platform this sender serves.
	Platform() types.Platform

	// Send delivers one notification to one device token and returns the
	// provider's message ID. Errors are typed: a rejected token is
	// permanent, transport failures are transient.
	Send(ctx context.Context, token, title, body string, data map[string]any) (string, error)
}

// SenderRegistry maps platform tags to their senders.
type SenderRegistry map[types.Platform]PushSender

// NewSenderRegistry builds the production registry from push configuration.
// Web endpoints ride the FCM transport.
func NewSenderRegistry(cfg config.PushConfig) SenderRegistry {
	client := &http.Client{Timeout: cfg.Timeout}
	fcm := &FCMSender{cfg: cfg, client: client}
	return SenderRegistry{
		types.PlatformAndroid: fcm,
		types.PlatformWeb:     fcm,
		types.PlatformIOS:     &APNSSender{cfg: cfg, client: client},
	}
}

// Compile-time assertions that both senders implement PushSender.
var (
	_ PushSender = (*FCMSender)(nil)
	_ PushSender = (*APNSSender)(nil)
)

// FCMSender delivers via Firebase Cloud Messaging HTTP v1.
type FCMSender struct {
	cfg    config.PushConfig
	client *http.Client
}

// Platform implements PushSender.
func (s *FCMSender) Platform() types.Platform { return types.PlatformAndroid }

// Send implements PushSender.
func (s *FCMSender) Send(ctx context.Context, token, title, body string, data map[string]any) (string, error) {
	payload := map[string]any{
		"message": map[string]any{
			"token": token,
			"notification": map[string]any{
				"title": title,
				"body":  body,
			},
			"data": stringifyData(data),
		},
	}

	respBody, err := postJSON(ctx, s.client, s.cfg.FCMEndpoint, s.cfg.FCMAuthToken, payload)
	if err != nil {
		return "", err
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPushUnavailable,
			"failed to decode FCM response", err)
	}
	return out.Name, nil
}

// APNSSender delivers via the Apple Push Notification service HTTP/2 API.
type APNSSender struct {
	cfg    config.PushConfig
	client *http.Client
}

// Platform implements PushSender.
func (s *APNSSender) Platform() types.Platform { return types.PlatformIOS }

// Send implements PushSender.
func (s *APNSSender) Send(ctx context.Context, token, title, body string, data map[string]any) (string, error) {
	payload := map[string]any{
		"aps": map[string]any{
			"alert": map[string]any{
				"title": title,
				"body":  body,
			},
			"sound": "default",
		},
	}
	for k, v := range data {
		payload[k] = v
	}

	endpoint := fmt.Sprintf("%s/%s", s.cfg.APNSEndpoint, token)
	req, err := buildJSONRequest(ctx, endpoint, s.cfg.APNSAuthToken, payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("apns-topic", s.cfg.APNSTopic)
	req.Header.Set("apns-push-type", "alert")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPushUnavailable, "APNs request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyPushStatus(resp.StatusCode); err != nil {
		return "", err
	}
	return resp.Header.Get("apns-id"), nil
}

// buildJSONRequest constructs an authorized POST with a JSON body.
func buildJSONRequest(ctx context.Context, endpoint, authToken string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal push payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build push request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	return req, nil
}

// postJSON executes an authorized JSON POST and returns the response body
// for 2xx statuses.
func postJSON(ctx context.Context, client *http.Client, endpoint, authToken string, payload any) ([]byte, error) {
	req, err := buildJSONRequest(ctx, endpoint, authToken, payload)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPushUnavailable, "push request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyPushStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPushUnavailable, "failed to read push response", err)
	}
	return buf.Bytes(), nil
}

// classifyPushStatus maps a transport status code to a typed error. Token
// rejections (400/404/410) are permanent; everything else non-2xx is
// transient.
func classifyPushStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusGone:
		return types.NewAppError(types.ErrCodeUpstreamPushRejected,
			fmt.Sprintf("push transport rejected token (%d)", status), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamPushUnavailable,
			fmt.Sprintf("push transport returned %d", status), nil)
	}
}

// stringifyData converts a payload map to the string-valued map FCM
// requires for its data field.
func stringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
