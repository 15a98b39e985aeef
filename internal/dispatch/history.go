package dispatch

import (
	"sync"
	"time"

	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/subscription"
)

// DefaultHistorySize is the dispatch history ring capacity.
const DefaultHistorySize = 1000

// Record is one dispatched alert bundle.
type Record struct {
	SubscriberID string                 `json:"subscriberId"`
	Location     subscription.Location  `json:"location"`
	Alerts       []forecast.Alert       `json:"alerts"`
	Channels     []subscription.Channel `json:"channels"`
	At           time.Time              `json:"at"`
}

// History is a bounded ring of dispatch records. When full, the oldest record
// is evicted.
type History struct {
	mu       sync.RWMutex
	records  []Record
	start    int
	size     int
	capacity int
}

// NewHistory creates a ring with the given capacity (default 1000).
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

// Append records a dispatch, evicting the oldest entry when full.
func (h *History) Append(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.start + h.size) % h.capacity
	h.records[idx] = rec
	if h.size < h.capacity {
		h.size++
	} else {
		h.start = (h.start + 1) % h.capacity
	}
}

// Latest returns up to limit records for a subscriber, newest first. A
// non-positive or over-capacity limit is clamped to the ring capacity.
func (h *History) Latest(subscriberID string, limit int) []Record {
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, 0, limit)
	for i := h.size - 1; i >= 0 && len(out) < limit; i-- {
		rec := h.records[(h.start+i)%h.capacity]
		if rec.SubscriberID == subscriberID {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of records currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}
