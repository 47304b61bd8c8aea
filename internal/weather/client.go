package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/metrics"
	"github.com/stormguard/stormguard/internal/types"
)

// Client fetches active alerts from the National Weather Service API
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewClient creates a new alert feed client
func NewClient(baseURL, userAgent string, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
		},
		logger:  logger.With().Str("component", "weather").Logger(),
		metrics: m,
	}
}

// featureCollection is the GeoJSON envelope of /alerts/active
type featureCollection struct {
	Features []struct {
		Properties struct {
			ID          string `json:"id"`
			Event       string `json:"event"`
			AreaDesc    string `json:"areaDesc"`
			SenderName  string `json:"senderName"`
			Description string `json:"description"`
			Expires     string `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

// Fetch returns the active alerts for a point. Any failure is logged and yields no alerts.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) []types.Alert {
	alerts, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.metrics.FetchFailed()
		c.logger.Warn().
			Err(err).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("Failed to fetch alerts, treating as none")
		return nil
	}
	return alerts
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) ([]types.Alert, error) {
	point := strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
	url := fmt.Sprintf("%s/alerts/active?point=%s", c.baseURL, point)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("alert feed error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}

	alerts := make([]types.Alert, 0, len(fc.Features))
	for _, f := range fc.Features {
		p := f.Properties
		alert := types.Alert{
			ID:              p.ID,
			EventType:       p.Event,
			AreaDescription: p.AreaDesc,
			Issuer:          p.SenderName,
			Description:     p.Description,
		}
		if p.Expires != "" {
			if t, err := time.Parse(time.RFC3339, p.Expires); err == nil {
				alert.Expiry = &t
			}
		}
		alerts = append(alerts, alert)
	}

	c.logger.Debug().
		Str("point", point).
		Int("alert_count", len(alerts)).
		Msg("Fetched alerts")

	return alerts, nil
}
