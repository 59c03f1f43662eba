package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"game-battle-service/logging"

	"go.uber.org/zap"
)

// DeviceSession is what the auth service reports for a valid device credential.
type DeviceSession struct {
	UserID      string   `json:"user_id"`
	DeviceID    string   `json:"device_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// DeviceValidator turns a bearer credential plus claimed device id into a session.
type DeviceValidator interface {
	ValidateDevice(ctx context.Context, accessToken, deviceID string) (*DeviceSession, error)
}

// AuthClient calls the external auth service's /auth/validate endpoint.
type AuthClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewAuthClient(baseURL, token string) *AuthClient {
	return &AuthClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateDevice returns Unauthorized for any rejected credential, including one that
// resolves to a different device than claimed. Transport failures are Unavailable.
func (c *AuthClient) ValidateDevice(ctx context.Context, accessToken, deviceID string) (*DeviceSession, error) {
	if accessToken == "" || deviceID == "" {
		return nil, ErrUnauthorized
	}
	body, err := json.Marshal(map[string]string{
		"access_token": accessToken,
		"device_id":    deviceID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/validate", bytes.NewReader(body))
	if err != nil {
		return nil, unavailable("build auth request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, unavailable("auth service", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		logging.L().Warn("auth_validate_failed", zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return nil, unavailable("auth service", fmt.Errorf("auth validation failed: %d", resp.StatusCode))
	}

	var out DeviceSession
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, unavailable("decode auth response", err)
	}
	if out.DeviceID == "" {
		out.DeviceID = deviceID
	}
	if out.DeviceID != deviceID {
		return nil, ErrUnauthorized
	}
	return &out, nil
}
