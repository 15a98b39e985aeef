package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/api/response"
	"github.com/airsentry/airsentry/internal/pushbus"
	"github.com/airsentry/airsentry/internal/scheduler"
)

// StreamHandler serves realtime events over server-sent events. A client
// joins the room for its quantized location, plus its subscriber room when a
// subscriberId is supplied.
type StreamHandler struct {
	bus    *pushbus.Bus
	logger zerolog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(bus *pushbus.Bus, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, logger: logger}
}

// Stream handles GET /v1/stream.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	q, fieldErrors := parseQuery(r)
	if fieldErrors != nil {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, r, "streaming is not supported by this connection")
		return
	}

	clientID := "conn_" + uuid.New().String()
	client := h.bus.Connect(clientID)
	defer h.bus.Disconnect(clientID)

	room := scheduler.RoomForLocation(q.Lat, q.Lng)
	if err := h.bus.Join(clientID, room); err != nil {
		response.InternalError(w, r, "failed to join location room")
		return
	}
	if subscriberID := r.URL.Query().Get("subscriberId"); subscriberID != "" {
		if err := h.bus.Join(clientID, "user:"+subscriberID); err != nil {
			response.InternalError(w, r, "failed to join subscriber room")
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		event, err := client.Next(ctx)
		if err != nil {
			return
		}
		data, err := json.Marshal(event.Payload)
		if err != nil {
			h.logger.Error().Err(err).Str("event_type", event.Type).Msg("failed to encode stream event")
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}
