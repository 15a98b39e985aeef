// Package airnow provides the EPA AirNow ground-station network client.
package airnow

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
	"github.com/airsentry/airsentry/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider in payloads and snapshots.
	ProviderName = "AirNow"

	// DefaultBaseURL is the AirNow API base URL.
	DefaultBaseURL = "https://www.airnowapi.org/aq"

	// DefaultTimeout bounds an AirNow fetch.
	DefaultTimeout = 15 * time.Second
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the AirNow client.
type ClientConfig struct {
	BaseURL string

	// APIKey authenticates requests. Never logged.
	APIKey string

	HTTPClient HTTPDoer
	Timeout    time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches EPA AirNow station observations. This provider has no mock
// fallback: on failure it reports ErrNoData and the merge simply skips it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates an AirNow client.
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
			Name:            "airnow",
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Wire format of the AirNow observation endpoint.

type observationData struct {
	DateObserved   string  `json:"DateObserved"`
	HourObserved   int     `json:"HourObserved"`
	ParameterName  string  `json:"ParameterName"`
	Concentration  float64 `json:"Concentration"`
	Unit           string  `json:"Unit"`
	SiteName       string  `json:"SiteName"`
	SiteID         string  `json:"SiteID"`
	Latitude       float64 `json:"Latitude"`
	Longitude      float64 `json:"Longitude"`
	DistanceMeters float64 `json:"DistanceMeters"`
}

// Fetch retrieves current observations near the query point. Failures are
// absorbed: the client returns ErrNoData so the canonicalizer skips this
// source. Only an invalid query is reported.
func (c *Client) Fetch(ctx context.Context, q airquality.Query) (*airquality.Payload, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	payload, err := c.fetch(ctx, q)
	if err != nil {
		c.logger.Warn().Err(err).
			Float64("lat", q.Lat).
			Float64("lng", q.Lng).
			Msg("airnow fetch failed, skipping source")
		return nil, airquality.ErrNoData
	}
	return payload, nil
}

func (c *Client) fetch(ctx context.Context, q airquality.Query) (*airquality.Payload, error) {
	url := fmt.Sprintf("%s/observation/latLong/current/?format=application/json&latitude=%.4f&longitude=%.4f&distance=%.0f&API_KEY=%s",
		c.baseURL, q.Lat, q.Lng, q.RadiusKm, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", airquality.ErrInternal, err)
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
		return nil, fmt.Errorf("%w: status %d from observation endpoint", airquality.ErrUpstream, resp.StatusCode)
	}

	var observations []observationData
	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return nil, fmt.Errorf("%w: decode observations: %v", airquality.ErrUpstream, err)
	}

	return c.toPayload(observations), nil
}

func (c *Client) toPayload(observations []observationData) *airquality.Payload {
	payload := &airquality.Payload{
		Source:    ProviderName,
		FetchedAt: time.Now(),
	}
	seenStations := make(map[string]bool)

	for i := range observations {
		o := &observations[i]
		pollutant, ok := airquality.ParsePollutant(o.ParameterName)
		if !ok || o.Concentration < 0 {
			continue
		}

		payload.Measurements = append(payload.Measurements, airquality.Measurement{
			Pollutant:      pollutant,
			Concentration:  o.Concentration,
			Unit:           pollutant.CanonicalUnit(),
			Source:         ProviderName,
			StationID:      o.SiteID,
			ObservedAt:     observedTime(o),
			DistanceMeters: o.DistanceMeters,
		})

		if o.SiteID != "" && !seenStations[o.SiteID] {
			seenStations[o.SiteID] = true
			payload.Stations = append(payload.Stations, airquality.Station{
				ID:             o.SiteID,
				Name:           o.SiteName,
				Source:         ProviderName,
				Lat:            o.Latitude,
				Lng:            o.Longitude,
				DistanceMeters: o.DistanceMeters,
			})
		}
	}

	return payload
}

// observedTime combines AirNow's split date and hour fields.
func observedTime(o *observationData) time.Time {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(o.DateObserved))
	if err != nil {
		return time.Time{}
	}
	return day.Add(time.Duration(o.HourObserved) * time.Hour)
}
