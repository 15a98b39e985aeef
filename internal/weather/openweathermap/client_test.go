package openweathermap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/weather"
	"github.com/airsentry/airsentry/internal/weather/openweathermap"
)

func TestClient_GetCurrentWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"coord": {"lat": 34.05, "lon": -118.24},
			"main": {"temp": 22.5, "humidity": 55, "pressure": 1015},
			"wind": {"speed": 3.6, "deg": 270},
			"clouds": {"all": 20},
			"weather": [{"main": "Clear", "description": "clear sky"}],
			"dt": 1772366400
		}`))
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: &http.Client{},
		Logger:     zerolog.Nop(),
	})

	obs, err := client.GetCurrentWeather(context.Background(), 34.05, -118.24)
	require.NoError(t, err)

	assert.Equal(t, 34.05, obs.Lat)
	assert.Equal(t, -118.24, obs.Lng)
	assert.Equal(t, 22.5, obs.TemperatureC)
	assert.Equal(t, 55.0, obs.HumidityPct)
	assert.Equal(t, 1015.0, obs.PressureHpa)
	assert.Equal(t, 3.6, obs.WindSpeedMs)
	assert.Equal(t, 270.0, obs.WindDirection)
	assert.Equal(t, 20.0, obs.CloudCoverPct)
	assert.Equal(t, "CLEAR", obs.Condition)
	assert.Equal(t, "clear sky", obs.Description)
	assert.Equal(t, time.Unix(1772366400, 0).UTC(), obs.ObservedAt)
	assert.False(t, obs.FetchedAt.IsZero())
}

func TestClient_GetCurrentWeather_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "bad-key",
		BaseURL:    server.URL,
		HTTPClient: &http.Client{},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetCurrentWeather(context.Background(), 34.05, -118.24)
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
}

func TestClient_GetCurrentWeather_EmptyWeatherArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"main": {"temp": 10}, "weather": [], "dt": 1772366400}`))
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: &http.Client{},
		Logger:     zerolog.Nop(),
	})

	obs, err := client.GetCurrentWeather(context.Background(), 34.05, -118.24)
	require.NoError(t, err)
	assert.Empty(t, obs.Condition)
	assert.Equal(t, 10.0, obs.TemperatureC)
}

func TestClient_Name(t *testing.T) {
	client := openweathermap.NewClient(openweathermap.ClientConfig{APIKey: "k", Logger: zerolog.Nop()})
	assert.Equal(t, "openweathermap", client.Name())
}
