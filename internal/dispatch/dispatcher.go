// Package dispatch evaluates forecast alerts against each subscriber's
// preferences and fans the surviving alerts out to the subscriber's enabled
// channels, with a per-subscriber cooldown between sends.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/pushbus"
	"github.com/airsentry/airsentry/internal/subscription"
)

// DefaultCooldown is the minimum interval between sends to one subscriber.
const DefaultCooldown = time.Hour

// EventAlert is the push bus event type for dispatched alerts.
const EventAlert = "air-quality-alert"

// AlertEvent is the payload published to a subscriber's push room.
type AlertEvent struct {
	SubscriberID string                `json:"subscriberId"`
	Alerts       []forecast.Alert      `json:"alerts"`
	At           time.Time             `json:"at"`
	Location     subscription.Location `json:"location"`
}

// Config holds dispatcher configuration.
type Config struct {
	// Logger for dispatch operations.
	Logger zerolog.Logger

	// Registry resolves subscribers and records dispatch times.
	Registry *subscription.Registry

	// Bus receives push-channel deliveries. Required.
	Bus *pushbus.Bus

	// Email is the email capability sink. Optional; email deliveries are
	// skipped when nil.
	Email EmailSink

	// SMS is the sms capability sink. Optional.
	SMS SMSSink

	// Cooldown between sends to the same subscriber (default 1h).
	Cooldown time.Duration

	// HistorySize caps the dispatch history ring (default 1000).
	HistorySize int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Dispatcher owns the dispatch history and the per-subscriber send locks.
type Dispatcher struct {
	logger   zerolog.Logger
	registry *subscription.Registry
	bus      *pushbus.Bus
	email    EmailSink
	sms      SMSSink
	cooldown time.Duration
	history  *History
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		logger:   cfg.Logger,
		registry: cfg.Registry,
		bus:      cfg.Bus,
		email:    cfg.Email,
		sms:      cfg.SMS,
		cooldown: cooldown,
		history:  NewHistory(cfg.HistorySize),
		now:      now,
	}
}

// History exposes the dispatch record ring.
func (d *Dispatcher) History() *History {
	return d.history
}

// DispatchForecast evaluates a forecast for every subscriber within radius of
// its location. Failures for one subscriber never block the others.
func (d *Dispatcher) DispatchForecast(ctx context.Context, fc *forecast.Forecast) int {
	if fc == nil || len(fc.Alerts) == 0 {
		return 0
	}

	sent := 0
	for _, sub := range d.registry.WithinRadius(fc.Location) {
		if ctx.Err() != nil {
			break
		}
		if d.Dispatch(ctx, sub.ID, fc) {
			sent++
		}
	}
	return sent
}

// Dispatch evaluates one forecast for one subscriber. Calls for the same
// subscriber are serialized so the cooldown check is race-free. Returns
// whether anything was sent.
func (d *Dispatcher) Dispatch(ctx context.Context, subscriberID string, fc *forecast.Forecast) bool {
	lock := d.subscriberLock(subscriberID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := d.registry.Get(subscriberID)
	if err != nil {
		return false
	}
	if !sub.Prefs.Enabled {
		return false
	}

	now := d.now()
	if !sub.LastDispatchAt.IsZero() && now.Sub(sub.LastDispatchAt) < d.cooldown {
		d.logger.Debug().
			Str("subscriber", sub.ID).
			Time("last_dispatch", sub.LastDispatchAt).
			Msg("subscriber in cooldown, skipping dispatch")
		return false
	}

	alerts := evaluateAlerts(fc.Alerts, sub.Prefs)
	if len(alerts) == 0 {
		return false
	}

	d.send(ctx, sub, alerts, now)
	d.registry.MarkDispatched(ctx, sub.ID, now)
	return true
}

// DispatchTest sends a synthetic info alert to a subscriber, bypassing both
// the cooldown and threshold evaluation. The cooldown clock is not touched.
func (d *Dispatcher) DispatchTest(ctx context.Context, subscriberID string) (*forecast.Alert, error) {
	lock := d.subscriberLock(subscriberID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := d.registry.Get(subscriberID)
	if err != nil {
		return nil, err
	}

	now := d.now()
	alert := forecast.Alert{
		Type:       forecast.AlertTest,
		Severity:   forecast.SeverityInfo,
		HoursUntil: 0,
		At:         now,
		Message:    "This is a test alert. Your notification channels are working.",
	}

	d.send(ctx, sub, []forecast.Alert{alert}, now)
	return &alert, nil
}

func (d *Dispatcher) send(ctx context.Context, sub *subscription.Subscriber, alerts []forecast.Alert, now time.Time) {
	event := AlertEvent{
		SubscriberID: sub.ID,
		Alerts:       alerts,
		At:           now,
		Location:     sub.Location,
	}

	for _, ch := range sub.Prefs.Channels {
		switch ch {
		case subscription.ChannelPush:
			d.bus.Publish("user:"+sub.ID, EventAlert, event)
		case subscription.ChannelEmail:
			if d.email == nil {
				continue
			}
			if err := d.email.SendEmail(ctx, sub.ID, emailSubject(alerts), emailBody(sub.Location, alerts)); err != nil {
				d.logger.Warn().Err(err).Str("subscriber", sub.ID).Msg("email delivery failed")
			}
		case subscription.ChannelSMS:
			if d.sms == nil {
				continue
			}
			if err := d.sms.SendSMS(ctx, sub.ID, smsBody(sub.Location, alerts)); err != nil {
				d.logger.Warn().Err(err).Str("subscriber", sub.ID).Msg("sms delivery failed")
			}
		}
	}

	d.history.Append(Record{
		SubscriberID: sub.ID,
		Location:     sub.Location,
		Alerts:       alerts,
		Channels:     sub.Prefs.Channels,
		At:           now,
	})

	d.logger.Info().
		Str("subscriber", sub.ID).
		Int("alerts", len(alerts)).
		Str("severity", string(worstSeverity(alerts))).
		Msg("dispatched alerts")
}

func (d *Dispatcher) subscriberLock(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[id]
	if !ok {
		if d.locks == nil {
			d.locks = make(map[string]*sync.Mutex)
		}
		lock = &sync.Mutex{}
		d.locks[id] = lock
	}
	return lock
}

// evaluateAlerts recomputes each alert's severity at the subscriber's
// thresholds and keeps only those at warning or above.
func evaluateAlerts(alerts []forecast.Alert, prefs subscription.Prefs) []forecast.Alert {
	defaults := forecast.DefaultPollutantThresholds()

	var kept []forecast.Alert
	for _, alert := range alerts {
		switch alert.Type {
		case forecast.AlertAQIWarning, forecast.AlertAQICritical, forecast.AlertAQIEmergency:
			t := prefs.AQIThresholds
			switch {
			case alert.AQI >= t.Emergency:
				alert.Severity = forecast.SeverityEmergency
				alert.Type = forecast.AlertAQIEmergency
			case alert.AQI >= t.Critical:
				alert.Severity = forecast.SeverityCritical
				alert.Type = forecast.AlertAQICritical
			case alert.AQI >= t.Warning:
				alert.Severity = forecast.SeverityWarning
				alert.Type = forecast.AlertAQIWarning
			default:
				continue
			}
		case forecast.AlertPollutantWarning, forecast.AlertPollutantCritical:
			limits, ok := prefs.PollutantThresholds[alert.Pollutant]
			if !ok {
				limits, ok = defaults[alert.Pollutant]
				if !ok {
					continue
				}
			}
			switch {
			case alert.Value >= limits.Critical:
				alert.Severity = forecast.SeverityCritical
				alert.Type = forecast.AlertPollutantCritical
			case alert.Value >= limits.Warning:
				alert.Severity = forecast.SeverityWarning
				alert.Type = forecast.AlertPollutantWarning
			default:
				continue
			}
		default:
			continue
		}
		kept = append(kept, alert)
	}
	return kept
}
