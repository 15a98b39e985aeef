// Package handler provides HTTP handlers for the AirSentry API.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/api/models"
	"github.com/airsentry/airsentry/internal/api/response"
	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/scheduler"
	"github.com/airsentry/airsentry/internal/weather"
)

// AirQualityHandler handles air quality and forecast endpoints.
type AirQualityHandler struct {
	airQuality *airquality.Service
	weather    *weather.Service
	engine     *forecast.Engine
	scheduler  *scheduler.Scheduler
	logger     zerolog.Logger
}

// AirQualityHandlerConfig holds the handler's dependencies.
type AirQualityHandlerConfig struct {
	AirQuality *airquality.Service
	Weather    *weather.Service
	Engine     *forecast.Engine
	Scheduler  *scheduler.Scheduler
	Logger     zerolog.Logger
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(cfg AirQualityHandlerConfig) *AirQualityHandler {
	return &AirQualityHandler{
		airQuality: cfg.AirQuality,
		weather:    cfg.Weather,
		engine:     cfg.Engine,
		scheduler:  cfg.Scheduler,
		logger:     cfg.Logger,
	}
}

// parseQuery reads lat/lng/radiusKm/horizonHours from the URL query and
// validates them. Defaults apply for radius and horizon.
func parseQuery(r *http.Request) (airquality.Query, []models.FieldError) {
	var fieldErrors []models.FieldError

	parse := func(name string, required bool, fallback float64) float64 {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			if required {
				fieldErrors = append(fieldErrors, models.FieldError{
					Field: name, Message: "is required", Code: "required",
				})
			}
			return fallback
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field: name, Message: "must be a number", Code: "invalid",
			})
			return fallback
		}
		return v
	}

	lat := parse("lat", true, 0)
	lng := parse("lng", true, 0)
	radius := parse("radiusKm", false, airquality.DefaultRadiusKm)
	horizon := parse("horizonHours", false, airquality.DefaultHorizonHours)
	if len(fieldErrors) > 0 {
		return airquality.Query{}, fieldErrors
	}

	q, err := airquality.NewQuery(lat, lng, radius, int(horizon))
	if err != nil {
		return airquality.Query{}, []models.FieldError{{
			Field: "query", Message: err.Error(), Code: "out_of_range",
		}}
	}
	return q, nil
}

// CurrentAirQuality handles GET /v1/air-quality/current.
func (h *AirQualityHandler) CurrentAirQuality(w http.ResponseWriter, r *http.Request) {
	q, fieldErrors := parseQuery(r)
	if fieldErrors != nil {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	snap, err := h.airQuality.CurrentSnapshot(r.Context(), q)
	if err != nil {
		h.writeSnapshotError(w, r, err)
		return
	}

	h.trackLocation(q)
	response.JSON(w, r, http.StatusOK, snap)
}

// Forecast handles GET /v1/air-quality/forecast.
func (h *AirQualityHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	fc, problemWritten := h.generate(w, r)
	if problemWritten {
		return
	}
	response.JSON(w, r, http.StatusOK, fc)
}

// PollutantForecast handles GET /v1/air-quality/forecast/{pollutant}.
func (h *AirQualityHandler) PollutantForecast(w http.ResponseWriter, r *http.Request) {
	pollutant, ok := airquality.ParsePollutant(chi.URLParam(r, "pollutant"))
	if !ok {
		response.BadRequest(w, r, "unknown pollutant", []models.FieldError{{
			Field: "pollutant", Message: "must be one of NO2, O3, SO2, HCHO, CO, PM25, PM10", Code: "invalid",
		}})
		return
	}

	fc, problemWritten := h.generate(w, r)
	if problemWritten {
		return
	}
	response.JSON(w, r, http.StatusOK, fc.ForPollutant(pollutant))
}

// AqiForecast handles GET /v1/air-quality/aqi-forecast.
func (h *AirQualityHandler) AqiForecast(w http.ResponseWriter, r *http.Request) {
	fc, problemWritten := h.generate(w, r)
	if problemWritten {
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"aqi":             fc.AQI,
		"alerts":          fc.Alerts,
		"recommendations": fc.Recommendations,
		"summary":         fc.Summary,
	})
}

// generate runs the full pipeline for a forecast request. A degraded forecast
// is always preferable to an error, so provider unavailability falls through
// to base-concentration projections.
func (h *AirQualityHandler) generate(w http.ResponseWriter, r *http.Request) (*forecast.Forecast, bool) {
	q, fieldErrors := parseQuery(r)
	if fieldErrors != nil {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return nil, true
	}

	ctx := r.Context()
	snap, err := h.airQuality.CurrentSnapshot(ctx, q)
	if err != nil {
		if errors.Is(err, airquality.ErrBadRequest) || errors.Is(err, airquality.ErrInternal) {
			h.writeSnapshotError(w, r, err)
			return nil, true
		}
		snap = nil
	}

	var obs *weather.Observation
	if h.weather != nil {
		if obs, err = h.weather.Current(ctx, q.Lat, q.Lng); err != nil {
			obs = nil
		}
	}

	now := time.Now()
	fc := h.engine.Generate(forecast.Inputs{
		Location:     q.Location(),
		HorizonHours: q.HorizonHours,
		Snapshot:     snap,
		Weather:      obs,
		Features:     forecast.AssembleFeatures(snap, obs, now),
		Now:          now,
	})

	h.trackLocation(q)
	return fc, false
}

func (h *AirQualityHandler) writeSnapshotError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, airquality.ErrBadRequest):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, airquality.ErrUnavailable):
		response.ServiceUnavailable(w, r, "no air quality provider is currently available")
	default:
		h.logger.Error().Err(err).Msg("snapshot request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func (h *AirQualityHandler) trackLocation(q airquality.Query) {
	if h.scheduler != nil {
		h.scheduler.Track(q.Location())
	}
}
