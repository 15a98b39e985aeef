// Package api provides the HTTP API for AirSentry.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/api/handler"
	"github.com/airsentry/airsentry/internal/api/middleware"
	"github.com/airsentry/airsentry/internal/dispatch"
	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/provider/resilience"
	"github.com/airsentry/airsentry/internal/pushbus"
	"github.com/airsentry/airsentry/internal/scheduler"
	"github.com/airsentry/airsentry/internal/subscription"
	"github.com/airsentry/airsentry/internal/weather"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	AirQuality *airquality.Service
	Weather    *weather.Service
	Engine     *forecast.Engine
	Registry   *subscription.Registry
	Dispatcher *dispatch.Dispatcher
	Bus        *pushbus.Bus
	Scheduler  *scheduler.Scheduler
	Health     *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "airsentry-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Health:    cfg.Health,
		Scheduler: cfg.Scheduler,
		Registry:  cfg.Registry,
	})
	airQualityHandler := handler.NewAirQualityHandler(handler.AirQualityHandlerConfig{
		AirQuality: cfg.AirQuality,
		Weather:    cfg.Weather,
		Engine:     cfg.Engine,
		Scheduler:  cfg.Scheduler,
		Logger:     cfg.Logger,
	})
	subscriptionHandler := handler.NewSubscriptionHandler(cfg.Registry, cfg.Dispatcher, cfg.Logger)

	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public, unthrottled for probes)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Air quality reads - forecast generation is the expensive path
		r.Route("/air-quality", func(r chi.Router) {
			r.With(standardRateLimit).Get("/current", airQualityHandler.CurrentAirQuality)
			r.With(expensiveRateLimit).Get("/forecast", airQualityHandler.Forecast)
			r.With(expensiveRateLimit).Get("/forecast/{pollutant}", airQualityHandler.PollutantForecast)
			r.With(expensiveRateLimit).Get("/aqi-forecast", airQualityHandler.AqiForecast)
		})

		// Subscription lifecycle
		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Post("/", subscriptionHandler.Subscribe)
			r.Route("/{subscriberId}", func(r chi.Router) {
				r.Delete("/", subscriptionHandler.Unsubscribe)
				r.Put("/prefs", subscriptionHandler.UpdatePrefs)
				r.Get("/history", subscriptionHandler.History)
				r.Post("/test", subscriptionHandler.TestAlert)
			})
		})

		// Realtime event stream
		if cfg.Bus != nil {
			streamHandler := handler.NewStreamHandler(cfg.Bus, cfg.Logger)
			r.With(standardRateLimit).Get("/stream", streamHandler.Stream)
		}
	})

	return r
}
