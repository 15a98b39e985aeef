package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/api/models"
	"github.com/airsentry/airsentry/internal/api/response"
	"github.com/airsentry/airsentry/internal/dispatch"
	"github.com/airsentry/airsentry/internal/subscription"
)

// SubscriptionHandler handles subscriber lifecycle and alert endpoints.
type SubscriptionHandler struct {
	registry   *subscription.Registry
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(registry *subscription.Registry, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Subscribe handles POST /v1/subscriptions.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var input models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.SubscriberID == "" {
		response.BadRequest(w, r, "subscriberId is required", []models.FieldError{{
			Field: "subscriberId", Message: "is required", Code: "required",
		}})
		return
	}

	prefs := subscription.DefaultPrefs()
	if input.Prefs != nil {
		prefs = *input.Prefs
	}

	sub, err := h.registry.Subscribe(r.Context(), input.SubscriberID, input.Location, prefs)
	if err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/subscriptions/%s", sub.ID)
	response.Created(w, r, location, sub)
}

// Unsubscribe handles DELETE /v1/subscriptions/{subscriberId}.
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	if err := h.registry.Unsubscribe(r.Context(), id); err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.Acknowledgment{
		Status:       "unsubscribed",
		SubscriberID: id,
	})
}

// UpdatePrefs handles PUT /v1/subscriptions/{subscriberId}/prefs. Unknown
// fields in the patch are rejected.
func (h *SubscriptionHandler) UpdatePrefs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var input models.PrefsRequest
	if err := decoder.Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid preferences patch: "+err.Error(), nil)
		return
	}

	sub, err := h.registry.UpdatePrefs(r.Context(), id, input.Prefs)
	if err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sub)
}

// History handles GET /v1/subscriptions/{subscriberId}/history.
func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")
	if _, err := h.registry.Get(id); err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}

	limit := dispatch.DefaultHistorySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > dispatch.DefaultHistorySize {
			response.BadRequest(w, r, "limit must be an integer in [1, 1000]", []models.FieldError{{
				Field: "limit", Message: "must be an integer in [1, 1000]", Code: "out_of_range",
			}})
			return
		}
		limit = parsed
	}

	records := h.dispatcher.History().Latest(id, limit)
	if records == nil {
		records = []dispatch.Record{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"subscriberId": id,
		"records":      records,
	})
}

// TestAlert handles POST /v1/subscriptions/{subscriberId}/test.
func (h *SubscriptionHandler) TestAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	alert, err := h.dispatcher.DispatchTest(r.Context(), id)
	if err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"subscriberId": id,
		"alert":        alert,
	})
}

func (h *SubscriptionHandler) writeSubscriptionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		response.NotFound(w, r, "subscriber not found")
	case errors.Is(err, subscription.ErrInvalidPrefs), errors.Is(err, subscription.ErrInvalidRadius):
		response.BadRequest(w, r, err.Error(), nil)
	default:
		h.logger.Error().Err(err).Msg("subscription request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
