// Package satellite provides the TEMPO satellite product client.
package satellite

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
	ProviderName = "TEMPO"

	// DefaultBaseURL is the satellite data service base URL.
	DefaultBaseURL = "https://api.tempo.earthdata.example.com/v1"

	// DefaultTimeout bounds a satellite fetch. Satellite granule lookups are
	// slower than station APIs.
	DefaultTimeout = 30 * time.Second

	// Resolution is the spatial resolution of the TEMPO product.
	Resolution = "2.1km"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the satellite client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey authenticates requests. Never logged.
	APIKey string

	// HTTPClient overrides the default resilient client.
	HTTPClient HTTPDoer

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// DisableMock turns off the deterministic fallback; failures then
	// surface as ErrNoData.
	DisableMock bool

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches satellite-derived column measurements. On any upstream
// failure it falls back to the deterministic mock unless mocks are disabled.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  HTTPDoer
	disableMock bool
	logger      zerolog.Logger
}

// NewClient creates a satellite client.
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
			Name:            "satellite",
			Timeout:         timeout,
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
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

// Wire format of the satellite data service.

type granuleResponse struct {
	Granules []granuleData `json:"granules"`
}

type granuleData struct {
	Product    string  `json:"product"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	ObservedAt string  `json:"observed_at"`
	Resolution string  `json:"resolution"`
}

// Fetch retrieves satellite measurements for the query area. Transport errors,
// timeouts, non-2xx statuses and parse failures all degrade to the
// deterministic mock; only an invalid query is reported to the caller.
func (c *Client) Fetch(ctx context.Context, q airquality.Query) (*airquality.Payload, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	payload, err := c.fetch(ctx, q)
	if err != nil {
		c.logger.Warn().Err(err).
			Float64("lat", q.Lat).
			Float64("lng", q.Lng).
			Msg("satellite fetch failed, using fallback")
		return c.fallback(q)
	}
	return payload, nil
}

func (c *Client) fetch(ctx context.Context, q airquality.Query) (*airquality.Payload, error) {
	url := fmt.Sprintf("%s/granules?lat=%.4f&lon=%.4f&radius_km=%.0f",
		c.baseURL, q.Lat, q.Lng, q.RadiusKm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", airquality.ErrInternal, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return nil, fmt.Errorf("%w: status %d from granules endpoint", airquality.ErrUpstream, resp.StatusCode)
	}

	var result granuleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode granules response: %v", airquality.ErrUpstream, err)
	}

	return c.toPayload(&result), nil
}

func (c *Client) toPayload(result *granuleResponse) *airquality.Payload {
	payload := &airquality.Payload{
		Source:     ProviderName,
		Satellite:  true,
		Resolution: Resolution,
		FetchedAt:  time.Now(),
	}

	for i := range result.Granules {
		g := &result.Granules[i]
		pollutant, ok := airquality.ParsePollutant(g.Product)
		if !ok || g.Value < 0 {
			continue
		}
		observedAt, _ := time.Parse(time.RFC3339, g.ObservedAt)
		if g.Resolution != "" {
			payload.Resolution = g.Resolution
		}
		payload.Measurements = append(payload.Measurements, airquality.Measurement{
			Pollutant:     pollutant,
			Concentration: g.Value,
			Unit:          pollutant.CanonicalUnit(),
			Source:        ProviderName,
			ObservedAt:    observedAt,
		})
	}

	return payload
}

func (c *Client) fallback(q airquality.Query) (*airquality.Payload, error) {
	if c.disableMock {
		return nil, airquality.ErrNoData
	}
	return provider.MockPayload(ProviderName, true, Resolution, q, time.Now()), nil
}
