package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/dispatch"
	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/pushbus"
	"github.com/airsentry/airsentry/internal/subscription"
)

type fakeEmail struct {
	sent []string
}

func (f *fakeEmail) SendEmail(_ context.Context, subscriberID, _, _ string) error {
	f.sent = append(f.sent, subscriberID)
	return nil
}

type fakeSMS struct {
	bodies []string
}

func (f *fakeSMS) SendSMS(_ context.Context, _, body string) error {
	f.bodies = append(f.bodies, body)
	return nil
}

type fixture struct {
	registry   *subscription.Registry
	bus        *pushbus.Bus
	dispatcher *dispatch.Dispatcher
	email      *fakeEmail
	sms        *fakeSMS
	clock      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry, err := subscription.NewRegistry(context.Background(), subscription.RegistryConfig{
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	bus := pushbus.NewBus(pushbus.BusConfig{Logger: zerolog.Nop()})
	email := &fakeEmail{}
	sms := &fakeSMS{}
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	f := &fixture{registry: registry, bus: bus, email: email, sms: sms, clock: &now}
	f.dispatcher = dispatch.NewDispatcher(dispatch.Config{
		Logger:   zerolog.Nop(),
		Registry: registry,
		Bus:      bus,
		Email:    email,
		SMS:      sms,
		Now:      func() time.Time { return *f.clock },
	})
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) subscribe(t *testing.T, id string, channels ...subscription.Channel) {
	t.Helper()
	prefs := subscription.DefaultPrefs()
	if len(channels) > 0 {
		prefs.Channels = channels
	}
	_, err := f.registry.Subscribe(context.Background(), id, subscription.Location{
		Lat: 40.71, Lng: -74.01, RadiusKm: 25,
	}, prefs)
	require.NoError(t, err)
}

func aqiForecast(at time.Time, hour, aqi int) *forecast.Forecast {
	return &forecast.Forecast{
		Location:     airquality.Location{Lat: 40.71, Lng: -74.01},
		HorizonHours: 24,
		GeneratedAt:  at,
		Alerts: []forecast.Alert{{
			Type:       forecast.AlertAQIWarning,
			Severity:   forecast.SeverityWarning,
			AQI:        aqi,
			HoursUntil: hour,
			At:         at.Add(time.Duration(hour) * time.Hour),
			Message:    "Air quality expected to reach unhealthy levels",
		}},
	}
}

func TestDispatcher_CooldownAllowsExactlyTwoSends(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "sub-1")

	ctx := context.Background()

	// t=0: AQI 130 at h=3, above warning=100.
	assert.True(t, f.dispatcher.Dispatch(ctx, "sub-1", aqiForecast(*f.clock, 3, 130)))

	// t=+20min: still in cooldown.
	f.advance(20 * time.Minute)
	assert.False(t, f.dispatcher.Dispatch(ctx, "sub-1", aqiForecast(*f.clock, 2, 140)))

	// t=+65min: cooldown expired.
	f.advance(45 * time.Minute)
	assert.True(t, f.dispatcher.Dispatch(ctx, "sub-1", aqiForecast(*f.clock, 1, 105)))

	records := f.dispatcher.History().Latest("sub-1", 0)
	assert.Len(t, records, 2)
}

func TestDispatcher_DisabledSubscriberSkipped(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "sub-1")

	enabled := false
	_, err := f.registry.UpdatePrefs(context.Background(), "sub-1", subscription.PrefsPatch{
		Enabled: &enabled,
	})
	require.NoError(t, err)

	assert.False(t, f.dispatcher.Dispatch(context.Background(), "sub-1", aqiForecast(*f.clock, 3, 180)))
	assert.Empty(t, f.dispatcher.History().Latest("sub-1", 0))
}

func TestDispatcher_SubscriberThresholdsOverrideDefaults(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "sub-1")

	// Raise the warning threshold above the forecast alert's AQI.
	_, err := f.registry.UpdatePrefs(context.Background(), "sub-1", subscription.PrefsPatch{
		AQIThresholds: &forecast.Thresholds{Warning: 150, Critical: 200, Emergency: 300},
	})
	require.NoError(t, err)

	assert.False(t, f.dispatcher.Dispatch(context.Background(), "sub-1", aqiForecast(*f.clock, 3, 130)))

	// AQI 210 now lands above critical at the custom thresholds.
	f.advance(2 * time.Hour)
	assert.True(t, f.dispatcher.Dispatch(context.Background(), "sub-1", aqiForecast(*f.clock, 3, 210)))

	records := f.dispatcher.History().Latest("sub-1", 0)
	require.Len(t, records, 1)
	require.Len(t, records[0].Alerts, 1)
	assert.Equal(t, forecast.SeverityCritical, records[0].Alerts[0].Severity)
	assert.Equal(t, forecast.AlertAQICritical, records[0].Alerts[0].Type)
}

func TestDispatcher_PushChannelPublishesToUserRoom(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "sub-1", subscription.ChannelPush)

	client := f.bus.Connect("conn-1")
	require.NoError(t, f.bus.Join("conn-1", "user:sub-1"))

	require.True(t, f.dispatcher.Dispatch(context.Background(), "sub-1", aqiForecast(*f.clock, 3, 130)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, err := client.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatch.EventAlert, event.Type)

	payload, ok := event.Payload.(dispatch.AlertEvent)
	require.True(t, ok)
	assert.Equal(t, "sub-1", payload.SubscriberID)
	assert.Len(t, payload.Alerts, 1)
}

func TestDispatcher_EmailAndSMSChannels(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "sub-1", subscription.ChannelEmail, subscription.ChannelSMS)

	require.True(t, f.dispatcher.Dispatch(context.Background(), "sub-1", aqiForecast(*f.clock, 3, 130)))

	assert.Equal(t, []string{"sub-1"}, f.email.sent)
	require.Len(t, f.sms.bodies, 1)
	assert.LessOrEqual(t, len(f.sms.bodies[0]), 170)
	assert.Contains(t, f.sms.bodies[0], "WARNING")
}

func TestDispatcher_TestAlertBypassesCooldown(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "sub-1")

	ctx := context.Background()
	require.True(t, f.dispatcher.Dispatch(ctx, "sub-1", aqiForecast(*f.clock, 3, 130)))

	// Still inside cooldown, but test alerts go through.
	f.advance(5 * time.Minute)
	alert, err := f.dispatcher.DispatchTest(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, forecast.AlertTest, alert.Type)
	assert.Equal(t, forecast.SeverityInfo, alert.Severity)

	records := f.dispatcher.History().Latest("sub-1", 0)
	assert.Len(t, records, 2)

	// And the regular cooldown clock is untouched by the test send.
	f.advance(56 * time.Minute)
	assert.True(t, f.dispatcher.Dispatch(ctx, "sub-1", aqiForecast(*f.clock, 1, 120)))
}

func TestDispatcher_TestAlertUnknownSubscriber(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.DispatchTest(context.Background(), "ghost")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestDispatcher_ForecastFanOut(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "near-1")
	f.subscribe(t, "near-2")

	// Far away: outside any plausible radius of the forecast location.
	_, err := f.registry.Subscribe(context.Background(), "far", subscription.Location{
		Lat: -33.87, Lng: 151.21, RadiusKm: 25,
	}, subscription.DefaultPrefs())
	require.NoError(t, err)

	sent := f.dispatcher.DispatchForecast(context.Background(), aqiForecast(*f.clock, 3, 130))
	assert.Equal(t, 2, sent)

	assert.Len(t, f.dispatcher.History().Latest("near-1", 0), 1)
	assert.Len(t, f.dispatcher.History().Latest("near-2", 0), 1)
	assert.Empty(t, f.dispatcher.History().Latest("far", 0))
}

func TestHistory_RingEvictsOldest(t *testing.T) {
	h := dispatch.NewHistory(3)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Append(dispatch.Record{SubscriberID: "s", At: base.Add(time.Duration(i) * time.Minute)})
	}

	assert.Equal(t, 3, h.Len())

	records := h.Latest("s", 0)
	require.Len(t, records, 3)
	// Newest first, oldest two evicted.
	assert.Equal(t, base.Add(4*time.Minute), records[0].At)
	assert.Equal(t, base.Add(2*time.Minute), records[2].At)
}

func TestHistory_LatestLimit(t *testing.T) {
	h := dispatch.NewHistory(10)
	for i := 0; i < 6; i++ {
		h.Append(dispatch.Record{SubscriberID: "s"})
	}
	h.Append(dispatch.Record{SubscriberID: "other"})

	assert.Len(t, h.Latest("s", 4), 4)
	assert.Len(t, h.Latest("s", 0), 6)
	assert.Len(t, h.Latest("other", 0), 1)
}
