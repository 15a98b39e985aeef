package models

import (
	"github.com/airsentry/airsentry/internal/subscription"
)

// SubscribeRequest creates or replaces a subscription.
type SubscribeRequest struct {
	SubscriberID string                `json:"subscriberId"`
	Location     subscription.Location `json:"location"`
	Prefs        *subscription.Prefs   `json:"prefs,omitempty"`
}

// PrefsRequest replaces parts of a subscriber's preferences. Unknown fields
// are rejected at decode time.
type PrefsRequest struct {
	Prefs subscription.PrefsPatch `json:"prefs"`
}

// Acknowledgment is a minimal confirmation response.
type Acknowledgment struct {
	Status       string `json:"status"`
	SubscriberID string `json:"subscriberId"`
}
