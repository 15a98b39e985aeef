package openaq_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/provider/openaq"
)

func query(lat, lng float64) airquality.Query {
	return airquality.Query{
		Lat:          lat,
		Lng:          lng,
		RadiusKm:     airquality.DefaultRadiusKm,
		HorizonHours: airquality.DefaultHorizonHours,
	}
}

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("coordinates"), "34.05")
		// The query radius is kilometers; the wire radius is meters.
		assert.Equal(t, "25000", r.URL.Query().Get("radius"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		response := map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"parameter":  "pm25",
					"value":      18.5,
					"unit":       "µg/m³",
					"location":   "LA Downtown",
					"locationId": 2178,
					"coordinates": map[string]float64{
						"latitude":  34.066,
						"longitude": -118.227,
					},
					"distance": 1800.0,
					"date":     map[string]string{"utc": "2026-03-01T12:00:00Z"},
				},
				{
					"parameter":  "no2",
					"value":      31.0,
					"location":   "LA Downtown",
					"locationId": 2178,
					"distance":   1800.0,
					"date":       map[string]string{"utc": "2026-03-01T12:00:00Z"},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		HTTPClient: &http.Client{},
		Logger:     zerolog.Nop(),
	})

	payload, err := client.Fetch(context.Background(), query(34.05, -118.24))
	require.NoError(t, err)
	require.NotNil(t, payload)

	assert.Equal(t, "OpenAQ", payload.Source)
	require.Len(t, payload.Measurements, 2)
	assert.Equal(t, airquality.PollutantPM25, payload.Measurements[0].Pollutant)
	assert.Equal(t, 18.5, payload.Measurements[0].Concentration)
	assert.Equal(t, "2178", payload.Measurements[0].StationID)
	assert.Equal(t, 1800.0, payload.Measurements[0].DistanceMeters)

	require.Len(t, payload.Stations, 1)
	assert.Equal(t, "LA Downtown", payload.Stations[0].Name)
}

func TestClient_Fetch_UpstreamFailureFallsBackToMock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{},
		Logger:     zerolog.Nop(),
	})

	payload, err := client.Fetch(context.Background(), query(34.05, -118.24))
	require.NoError(t, err)
	assert.True(t, payload.Fallback)
	assert.False(t, payload.Satellite)
	assert.NotEmpty(t, payload.Stations)
}

func TestClient_Fetch_MockDisabledReturnsNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := openaq.NewClient(openaq.ClientConfig{
		BaseURL:     server.URL,
		HTTPClient:  &http.Client{},
		DisableMock: true,
		Logger:      zerolog.Nop(),
	})

	_, err := client.Fetch(context.Background(), query(34.05, -118.24))
	assert.ErrorIs(t, err, airquality.ErrNoData)
}

func TestClient_Name(t *testing.T) {
	client := openaq.NewClient(openaq.ClientConfig{Logger: zerolog.Nop()})
	assert.Equal(t, "OpenAQ", client.Name())
}
