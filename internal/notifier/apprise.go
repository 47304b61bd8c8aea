package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/types"
)

// Apprise sends notifications through an Apprise API server.
// A recipient "apprise:ops" targets the service URL in APPRISE_OPS_URL.
type Apprise struct {
	logger zerolog.Logger
	client *http.Client
	apiURL string
	getenv func(string) string
}

// NewApprise creates a new Apprise transport. An empty apiURL logs instead of sending.
func NewApprise(apiURL string, timeout time.Duration, logger zerolog.Logger) *Apprise {
	return &Apprise{
		logger: logger.With().Str("component", "apprise").Logger(),
		client: &http.Client{
			Timeout: timeout,
		},
		apiURL: strings.TrimRight(apiURL, "/"),
		getenv: os.Getenv,
	}
}

// Name implements Transport
func (a *Apprise) Name() string { return "apprise" }

func (a *Apprise) serviceURL(channel string) string {
	return a.getenv(fmt.Sprintf("APPRISE_%s_URL", strings.ToUpper(channel)))
}

// Resolve implements Directory: a channel is deliverable when its URL is configured
func (a *Apprise) Resolve(_ context.Context, channel string) (types.Recipient, bool) {
	if channel == "" || a.serviceURL(channel) == "" {
		return types.Recipient{}, false
	}
	return types.Recipient{ID: channel, DisplayName: channel}, true
}

// Send implements Sink
func (a *Apprise) Send(ctx context.Context, to types.Recipient, msg types.Message) error {
	url := a.serviceURL(to.ID)
	if url == "" {
		return fmt.Errorf("channel %s: URL not configured", to.ID)
	}

	payload := map[string]string{
		"title":  msg.Title,
		"body":   bodyText(msg),
		"type":   appriseType(msg.Severity),
		"format": "text",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if a.apiURL == "" {
		a.logger.Info().
			Str("channel", to.ID).
			Str("title", msg.Title).
			Msg("Would send notification (Apprise not configured)")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/notify/%s", a.apiURL, url), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Apprise API error: %d - %s", resp.StatusCode, string(body))
	}

	a.logger.Debug().Str("channel", to.ID).Msg("Notification sent")
	return nil
}

// bodyText is the message without its title, which Apprise carries separately
func bodyText(msg types.Message) string {
	msg.Title = ""
	return msg.Text()
}

func appriseType(severity string) string {
	switch severity {
	case "critical":
		return "failure"
	case "warning":
		return "warning"
	default:
		return "info"
	}
}
