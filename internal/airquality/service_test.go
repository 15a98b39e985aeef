package airquality_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/provider"
)

// fakeClient is a scriptable pipeline client.
type fakeClient struct {
	name      string
	satellite bool
	err       error
	calls     atomic.Int64
}

func (f *fakeClient) Fetch(_ context.Context, q airquality.Query) (*airquality.Payload, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return provider.MockPayload(f.name, f.satellite, "2.1km", q, time.Now()), nil
}

func (f *fakeClient) Name() string { return f.name }

func newPipeline(sat, groundA, groundB airquality.Client) *airquality.Service {
	return airquality.NewService(airquality.ServiceConfig{
		Satellite: sat,
		GroundA:   groundA,
		GroundB:   groundB,
		Logger:    zerolog.Nop(),
	})
}

func TestCurrentSnapshot_MergesAllProviders(t *testing.T) {
	sat := &fakeClient{name: "TEMPO", satellite: true}
	groundA := &fakeClient{name: "AirNow"}
	groundB := &fakeClient{name: "OpenAQ"}
	svc := newPipeline(sat, groundA, groundB)

	snap, err := svc.CurrentSnapshot(context.Background(), mustQuery(t, 34.05, -118.24))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"TEMPO", "AirNow", "OpenAQ"}, snap.Sources)
	assert.Len(t, snap.Pollutants, len(airquality.Pollutants))
	assert.Equal(t, airquality.ConfidenceHigh, snap.DataQuality.Confidence)
	assert.Equal(t, airquality.CoverageFull, snap.DataQuality.Coverage)
	assert.True(t, snap.Contributions.Satellite)
	assert.True(t, snap.Contributions.Ground)
}

func TestCurrentSnapshot_DegradedWhenProviderHasNoData(t *testing.T) {
	sat := &fakeClient{name: "TEMPO", satellite: true}
	groundA := &fakeClient{name: "AirNow", err: airquality.ErrNoData}
	groundB := &fakeClient{name: "OpenAQ", err: airquality.ErrNoData}
	svc := newPipeline(sat, groundA, groundB)

	snap, err := svc.CurrentSnapshot(context.Background(), mustQuery(t, 40.71, -74.01))
	require.NoError(t, err)

	assert.Equal(t, []string{"TEMPO"}, snap.Sources)
	assert.Equal(t, airquality.ConfidenceMedium, snap.DataQuality.Confidence)
}

func TestCurrentSnapshot_AllProvidersEmptyReturnsUnavailable(t *testing.T) {
	svc := newPipeline(
		&fakeClient{name: "TEMPO", satellite: true, err: airquality.ErrNoData},
		&fakeClient{name: "AirNow", err: airquality.ErrNoData},
		&fakeClient{name: "OpenAQ", err: airquality.ErrNoData},
	)

	_, err := svc.CurrentSnapshot(context.Background(), mustQuery(t, 40.71, -74.01))
	assert.ErrorIs(t, err, airquality.ErrUnavailable)
}

func TestCurrentSnapshot_RejectsInvalidQueryBeforeFetch(t *testing.T) {
	sat := &fakeClient{name: "TEMPO", satellite: true}
	svc := newPipeline(sat, nil, nil)

	q := airquality.Query{Lat: 95, RadiusKm: airquality.DefaultRadiusKm, HorizonHours: airquality.DefaultHorizonHours}
	_, err := svc.CurrentSnapshot(context.Background(), q)
	assert.ErrorIs(t, err, airquality.ErrBadRequest)
	assert.Equal(t, int64(0), sat.calls.Load())
}

func TestCurrentSnapshot_NilClientsAreAbsentSources(t *testing.T) {
	groundA := &fakeClient{name: "AirNow"}
	svc := newPipeline(nil, groundA, nil)

	snap, err := svc.CurrentSnapshot(context.Background(), mustQuery(t, 51.51, -0.13))
	require.NoError(t, err)
	assert.Equal(t, []string{"AirNow"}, snap.Sources)
}

func TestCurrentSnapshot_SecondQueryServedFromCache(t *testing.T) {
	sat := &fakeClient{name: "TEMPO", satellite: true}
	groundA := &fakeClient{name: "AirNow"}
	svc := newPipeline(sat, groundA, nil)

	q := mustQuery(t, 34.05, -118.24)
	_, err := svc.CurrentSnapshot(context.Background(), q)
	require.NoError(t, err)
	_, err = svc.CurrentSnapshot(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int64(1), sat.calls.Load())
	assert.Equal(t, int64(1), groundA.calls.Load())
}

func TestCurrentSnapshot_UnexpectedProviderErrorTreatedAsAbsent(t *testing.T) {
	sat := &fakeClient{name: "TEMPO", satellite: true}
	groundA := &fakeClient{name: "AirNow", err: context.DeadlineExceeded}
	svc := newPipeline(sat, groundA, nil)

	snap, err := svc.CurrentSnapshot(context.Background(), mustQuery(t, 34.05, -118.24))
	require.NoError(t, err)
	assert.Equal(t, []string{"TEMPO"}, snap.Sources)
}

func TestSweep_EvictsExpiredEntries(t *testing.T) {
	sat := &fakeClient{name: "TEMPO", satellite: true}
	svc := airquality.NewService(airquality.ServiceConfig{
		Satellite:    sat,
		Logger:       zerolog.Nop(),
		SatelliteTTL: time.Nanosecond,
		GroundTTL:    time.Nanosecond,
	})

	_, err := svc.CurrentSnapshot(context.Background(), mustQuery(t, 34.05, -118.24))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, svc.Sweep())
	assert.Equal(t, 0, svc.Sweep())
}
