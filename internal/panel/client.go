package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when no panel URL is set
var ErrNotConfigured = errors.New("panel not configured")

// Power signals accepted by the panel
const (
	SignalStart   = "start"
	SignalStop    = "stop"
	SignalRestart = "restart"
	SignalKill    = "kill"
)

// ValidSignal reports whether s is a power signal the panel understands
func ValidSignal(s string) bool {
	switch s {
	case SignalStart, SignalStop, SignalRestart, SignalKill:
		return true
	}
	return false
}

// Client talks to a Pterodactyl-compatible panel's client API
type Client struct {
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a panel client. An empty baseURL makes every call return ErrNotConfigured.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:  logger.With().Str("component", "panel").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *Client) serverURL(serverID, suffix string) string {
	return fmt.Sprintf("%s/api/client/servers/%s/%s", c.baseURL, url.PathEscape(serverID), suffix)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Power sends a power signal to a server. The panel answers 204 on success.
func (c *Client) Power(ctx context.Context, serverID, signal string) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	if !ValidSignal(signal) {
		return fmt.Errorf("unknown power signal %q", signal)
	}

	payload, err := json.Marshal(map[string]string{"signal": signal})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.serverURL(serverID, "power"), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("panel API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info().Str("server", serverID).Str("signal", signal).Msg("Power signal sent")
	return nil
}

type resourcesResponse struct {
	Attributes struct {
		CurrentState string `json:"current_state"`
	} `json:"attributes"`
}

// State returns the server's current state, e.g. "running" or "offline"
func (c *Client) State(ctx context.Context, serverID string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.serverURL(serverID, "resources"), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("panel API error: %d", resp.StatusCode)
	}

	var out resourcesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode resources: %w", err)
	}
	return out.Attributes.CurrentState, nil
}

// StopAll sends the stop signal to every server. Failures are logged and joined.
func (c *Client) StopAll(ctx context.Context, serverIDs []string) error {
	var errs []error
	for _, id := range serverIDs {
		if err := c.Power(ctx, id, SignalStop); err != nil {
			c.logger.Error().Err(err).Str("server", id).Msg("Failed to stop server")
			errs = append(errs, fmt.Errorf("server %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
