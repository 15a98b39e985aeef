// Package subscription owns the set of alert subscribers. The Registry is the
// exclusive owner of subscriber state; all reads and writes go through it.
package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/forecast"
)

// Subscription errors.
var (
	ErrNotFound      = errors.New("subscriber not found")
	ErrInvalidPrefs  = errors.New("invalid subscriber preferences")
	ErrInvalidRadius = errors.New("invalid subscription radius")
)

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelPush, ChannelEmail, ChannelSMS:
		return Channel(s), true
	default:
		return "", false
	}
}

// Location is a subscriber's area of interest.
type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusKm float64 `json:"radiusKm"`
}

// Prefs are a subscriber's alerting preferences.
type Prefs struct {
	// AQIThresholds override the forecast defaults. The ordering invariant
	// warning < critical < emergency is enforced on write.
	AQIThresholds forecast.Thresholds `json:"aqiThresholds"`

	// PollutantThresholds override per-pollutant concentration levels.
	PollutantThresholds map[airquality.Pollutant]forecast.PollutantThresholds `json:"perPollutantThresholds,omitempty"`

	// Channels is the set of enabled delivery channels.
	Channels []Channel `json:"channels"`

	// Enabled gates all dispatch for the subscriber.
	Enabled bool `json:"enabled"`
}

// DefaultPrefs returns enabled prefs with the forecast default thresholds and
// push delivery.
func DefaultPrefs() Prefs {
	return Prefs{
		AQIThresholds: forecast.DefaultThresholds(),
		Channels:      []Channel{ChannelPush},
		Enabled:       true,
	}
}

// Validate checks the preference invariants.
func (p Prefs) Validate() error {
	t := p.AQIThresholds
	if !(t.Warning < t.Critical && t.Critical < t.Emergency) {
		return fmt.Errorf("%w: aqi thresholds must satisfy warning < critical < emergency", ErrInvalidPrefs)
	}
	for pollutant, limits := range p.PollutantThresholds {
		if _, ok := airquality.ParsePollutant(string(pollutant)); !ok {
			return fmt.Errorf("%w: unknown pollutant %q", ErrInvalidPrefs, pollutant)
		}
		if limits.Warning >= limits.Critical {
			return fmt.Errorf("%w: %s thresholds must satisfy warning < critical", ErrInvalidPrefs, pollutant)
		}
	}
	for _, ch := range p.Channels {
		if _, ok := ParseChannel(string(ch)); !ok {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidPrefs, ch)
		}
	}
	return nil
}

// HasChannel reports whether a channel is enabled.
func (p Prefs) HasChannel(ch Channel) bool {
	for _, c := range p.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// PrefsPatch is a partial update applied by UpdatePrefs. Nil fields are left
// unchanged.
type PrefsPatch struct {
	AQIThresholds       *forecast.Thresholds                                  `json:"aqiThresholds,omitempty"`
	PollutantThresholds map[airquality.Pollutant]forecast.PollutantThresholds `json:"perPollutantThresholds,omitempty"`
	Channels            *[]Channel                                            `json:"channels,omitempty"`
	Enabled             *bool                                                 `json:"enabled,omitempty"`
}

// Subscriber is one registered alert recipient. Identity is an opaque ID;
// there is no further authentication.
type Subscriber struct {
	ID             string    `json:"id"`
	Location       Location  `json:"location"`
	Prefs          Prefs     `json:"prefs"`
	LastDispatchAt time.Time `json:"lastDispatchAt,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// clone returns a deep copy so registry reads never alias internal state.
func (s *Subscriber) clone() *Subscriber {
	cpy := *s
	if s.Prefs.PollutantThresholds != nil {
		cpy.Prefs.PollutantThresholds = make(map[airquality.Pollutant]forecast.PollutantThresholds, len(s.Prefs.PollutantThresholds))
		for k, v := range s.Prefs.PollutantThresholds {
			cpy.Prefs.PollutantThresholds[k] = v
		}
	}
	cpy.Prefs.Channels = append([]Channel(nil), s.Prefs.Channels...)
	return &cpy
}
