package weather_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/weather"
)

type stubProvider struct {
	obs   *weather.Observation
	err   error
	calls atomic.Int64
}

func (s *stubProvider) GetCurrentWeather(_ context.Context, lat, lng float64) (*weather.Observation, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	obs := *s.obs
	obs.Lat, obs.Lng = lat, lng
	return &obs, nil
}

func (s *stubProvider) Name() string { return "stub" }

func TestCurrent_FetchesAndCaches(t *testing.T) {
	provider := &stubProvider{obs: &weather.Observation{TemperatureC: 18, WindSpeedMs: 2}}
	svc := weather.NewService(weather.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	obs, err := svc.Current(context.Background(), 34.05, -118.24)
	require.NoError(t, err)
	assert.Equal(t, 18.0, obs.TemperatureC)

	_, err = svc.Current(context.Background(), 34.05, -118.24)
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestCurrent_GridCellSharing(t *testing.T) {
	provider := &stubProvider{obs: &weather.Observation{TemperatureC: 18}}
	svc := weather.NewService(weather.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	// Points within the same 0.1-degree cell share one fetch.
	_, err := svc.Current(context.Background(), 34.01, -118.24)
	require.NoError(t, err)
	_, err = svc.Current(context.Background(), 34.04, -118.22)
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.calls.Load())

	// A different cell fetches again.
	_, err = svc.Current(context.Background(), 34.41, -118.24)
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestCurrent_ProviderFailureYieldsNoData(t *testing.T) {
	provider := &stubProvider{err: errors.New("rate limited")}
	svc := weather.NewService(weather.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	_, err := svc.Current(context.Background(), 34.05, -118.24)
	assert.ErrorIs(t, err, weather.ErrNoData)
}

func TestCurrent_NilProviderYieldsNoData(t *testing.T) {
	svc := weather.NewService(weather.ServiceConfig{Logger: zerolog.Nop()})

	_, err := svc.Current(context.Background(), 34.05, -118.24)
	assert.ErrorIs(t, err, weather.ErrNoData)
}

func TestObservation_WindCategory(t *testing.T) {
	tests := []struct {
		speed float64
		want  weather.WindCategory
	}{
		{0.5, weather.WindCalm},
		{2, weather.WindLight},
		{5, weather.WindModerate},
		{12, weather.WindStrong},
	}
	for _, tt := range tests {
		obs := &weather.Observation{WindSpeedMs: tt.speed}
		assert.Equal(t, tt.want, obs.GetWindCategory(), "speed %v", tt.speed)
	}
}

func TestObservation_StagnationIndex(t *testing.T) {
	calm := &weather.Observation{WindSpeedMs: 0, PressureHpa: 1013}
	assert.Equal(t, 1.0, calm.StagnationIndex())

	windy := &weather.Observation{WindSpeedMs: 10, PressureHpa: 1013}
	assert.Equal(t, 0.0, windy.StagnationIndex())

	ridge := &weather.Observation{WindSpeedMs: 0, PressureHpa: 1030}
	assert.InDelta(t, 1.3, ridge.StagnationIndex(), 1e-9)
}

func TestObservation_DispersionIndex(t *testing.T) {
	obs := &weather.Observation{WindSpeedMs: 5, CloudCoverPct: 50}
	assert.InDelta(t, 1.0, obs.DispersionIndex(), 1e-9)
}
