// Package openaq provides the OpenAQ community station network client.
package openaq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/provider"
	"github.com/airsentry/airsentry/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider in payloads and snapshots.
	ProviderName = "OpenAQ"

	// DefaultBaseURL is the OpenAQ API base URL.
	DefaultBaseURL = "https://api.openaq.org/v3"

	// DefaultTimeout bounds an OpenAQ fetch.
	DefaultTimeout = 15 * time.Second
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenAQ client.
type ClientConfig struct {
	BaseURL string

	// APIKey authenticates requests. Never logged.
	APIKey string

	HTTPClient HTTPDoer
	Timeout    time.Duration

	// DisableMock turns off the deterministic fallback.
	DisableMock bool

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches OpenAQ latest measurements. On upstream failure it falls back
// to the deterministic mock unless mocks are disabled.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  HTTPDoer
	disableMock bool
	logger      zerolog.Logger
}

// NewClient creates an OpenAQ client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            "openaq",
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		})
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		disableMock: cfg.DisableMock,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Wire format of the OpenAQ latest endpoint.

type latestResponse struct {
	Results []latestResult `json:"results"`
}

type latestResult struct {
	Parameter   string          `json:"parameter"`
	Value       float64         `json:"value"`
	Unit        string          `json:"unit"`
	Location    string          `json:"location"`
	LocationID  int64           `json:"locationId"`
	Coordinates coordinatesData `json:"coordinates"`
	Distance    float64         `json:"distance"`
	Date        dateData        `json:"date"`
}

type coordinatesData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type dateData struct {
	UTC string `json:"utc"`
}

// Fetch retrieves the latest measurements near the query point. Upstream
// failures degrade to the deterministic mock; invalid queries are reported.
func (c *Client) Fetch(ctx context.Context, q airquality.Query) (*airquality.Payload, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	payload, err := c.fetch(ctx, q)
	if err != nil {
		c.logger.Warn().Err(err).
			Float64("lat", q.Lat).
			Float64("lng", q.Lng).
			Msg("openaq fetch failed, using fallback")
		return c.fallback(q)
	}
	return payload, nil
}

func (c *Client) fetch(ctx context.Context, q airquality.Query) (*airquality.Payload, error) {
	// OpenAQ expects the radius in meters.
	url := fmt.Sprintf("%s/latest?coordinates=%.4f,%.4f&radius=%.0f&limit=100",
		c.baseURL, q.Lat, q.Lng, q.RadiusKm*1000)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", airquality.ErrInternal, err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, airquality.ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", airquality.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from latest endpoint", airquality.ErrUpstream, resp.StatusCode)
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode latest response: %v", airquality.ErrUpstream, err)
	}

	return c.toPayload(&result), nil
}

func (c *Client) toPayload(result *latestResponse) *airquality.Payload {
	payload := &airquality.Payload{
		Source:    ProviderName,
		FetchedAt: time.Now(),
	}
	seenStations := make(map[string]bool)

	for i := range result.Results {
		r := &result.Results[i]
		pollutant, ok := airquality.ParsePollutant(r.Parameter)
		if !ok || r.Value < 0 {
			continue
		}

		observedAt, _ := time.Parse(time.RFC3339, r.Date.UTC)
		stationID := fmt.Sprintf("%d", r.LocationID)

		payload.Measurements = append(payload.Measurements, airquality.Measurement{
			Pollutant:      pollutant,
			Concentration:  r.Value,
			Unit:           pollutant.CanonicalUnit(),
			Source:         ProviderName,
			StationID:      stationID,
			ObservedAt:     observedAt,
			DistanceMeters: r.Distance,
		})

		if !seenStations[stationID] {
			seenStations[stationID] = true
			payload.Stations = append(payload.Stations, airquality.Station{
				ID:             stationID,
				Name:           r.Location,
				Source:         ProviderName,
				Lat:            r.Coordinates.Latitude,
				Lng:            r.Coordinates.Longitude,
				DistanceMeters: r.Distance,
			})
		}
	}

	return payload
}

func (c *Client) fallback(q airquality.Query) (*airquality.Payload, error) {
	if c.disableMock {
		return nil, airquality.ErrNoData
	}
	return provider.MockPayload(ProviderName, false, "", q, time.Now()), nil
}
