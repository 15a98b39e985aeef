package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
)

// PubSubHandler consumes refresh trigger messages so external systems (cron
// jobs, ops tooling) can force a cycle without touching the HTTP surface.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	scheduler        *Scheduler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Scheduler        *Scheduler
	Logger           zerolog.Logger
}

// TriggerMessage is a refresh trigger published by external schedulers.
type TriggerMessage struct {
	JobType string   `json:"job_type"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// NewPubSubHandler creates a Pub/Sub trigger consumer.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		scheduler:        cfg.Scheduler,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing trigger messages until the context is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub trigger handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(_ context.Context, msg *pubsub.Message) {
	logger := h.logger.With().Str("message_id", msg.ID).Logger()

	var trigger TriggerMessage
	if err := json.Unmarshal(msg.Data, &trigger); err != nil {
		logger.Error().Err(err).Msg("failed to parse trigger message")
		msg.Nack()
		return
	}

	switch trigger.JobType {
	case "forecast_refresh":
		if trigger.Lat != nil && trigger.Lng != nil {
			h.scheduler.Track(airquality.Location{Lat: *trigger.Lat, Lng: *trigger.Lng})
		}
		h.scheduler.Trigger()
		logger.Info().Msg("refresh cycle triggered")
	default:
		logger.Warn().Str("job_type", trigger.JobType).Msg("unknown job type")
	}

	// Ack everything; triggers are idempotent and coalesce.
	msg.Ack()
}
