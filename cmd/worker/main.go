// Package main provides the entrypoint for the AirSentry background worker.
// It runs the refresh scheduler headless, optionally driven by Pub/Sub
// trigger messages in addition to the interval ticker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/database"
	"github.com/airsentry/airsentry/internal/dispatch"
	"github.com/airsentry/airsentry/internal/forecast"
	"github.com/airsentry/airsentry/internal/provider/airnow"
	"github.com/airsentry/airsentry/internal/provider/openaq"
	"github.com/airsentry/airsentry/internal/provider/resilience"
	"github.com/airsentry/airsentry/internal/provider/satellite"
	"github.com/airsentry/airsentry/internal/pushbus"
	"github.com/airsentry/airsentry/internal/scheduler"
	"github.com/airsentry/airsentry/internal/subscription"
	"github.com/airsentry/airsentry/internal/weather"
	"github.com/airsentry/airsentry/internal/weather/openweathermap"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "airsentry-worker").
		Str("version", Version).
		Logger()

	log.Info().Msg("starting AirSentry worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	disableMock := os.Getenv("DISABLE_MOCK_FALLBACK") == "true"

	airQuality := airquality.NewService(airquality.ServiceConfig{
		Satellite: satellite.NewClient(satellite.ClientConfig{
			BaseURL: os.Getenv("TEMPO_BASE_URL"),
			APIKey:  os.Getenv("TEMPO_API_KEY"),
			HTTPClient: resilience.NewClient(resilience.ClientConfig{
				Name:    "satellite",
				Timeout: 30 * time.Second,
			}),
			DisableMock: disableMock,
			Logger:      log,
		}),
		GroundA: airnow.NewClient(airnow.ClientConfig{
			BaseURL: os.Getenv("AIRNOW_BASE_URL"),
			APIKey:  os.Getenv("AIRNOW_API_KEY"),
			HTTPClient: resilience.NewClient(resilience.ClientConfig{
				Name:    "airnow",
				Timeout: 15 * time.Second,
			}),
			Logger: log,
		}),
		GroundB: openaq.NewClient(openaq.ClientConfig{
			BaseURL: os.Getenv("OPENAQ_BASE_URL"),
			APIKey:  os.Getenv("OPENAQ_API_KEY"),
			HTTPClient: resilience.NewClient(resilience.ClientConfig{
				Name:    "openaq",
				Timeout: 15 * time.Second,
			}),
			DisableMock: disableMock,
			Logger:      log,
		}),
		Logger: log,
	})

	var weatherService *weather.Service
	if owmKey := os.Getenv("OPENWEATHERMAP_API_KEY"); owmKey != "" {
		weatherService = weather.NewService(weather.ServiceConfig{
			Provider: openweathermap.NewClient(openweathermap.ClientConfig{
				APIKey: owmKey,
				Logger: log,
			}),
			Logger: log,
		})
	}

	var repo subscription.Repository
	if os.Getenv("DB_ENABLED") == "true" {
		pool, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		repo = subscription.NewPostgresRepository(pool)
	}

	registry, err := subscription.NewRegistry(ctx, subscription.RegistryConfig{
		Logger:     log,
		Repository: repo,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load subscriber registry")
	}
	log.Info().Int("subscribers", registry.Count()).Msg("subscriber registry loaded")

	bus := pushbus.NewBus(pushbus.BusConfig{Logger: log})
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Logger:   log,
		Registry: registry,
		Bus:      bus,
	})

	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		AirQuality: airQuality,
		Weather:    weatherService,
		Engine:     forecast.NewEngine(forecast.EngineConfig{Logger: log}),
		Registry:   registry,
		Dispatcher: dispatcher,
		Bus:        bus,
	})

	// Pub/Sub is optional; without it the worker runs on the interval
	// ticker alone.
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		subName := os.Getenv("PUBSUB_SUBSCRIPTION")
		if subName == "" {
			subName = "forecast-refresh-sub"
		}

		handler, err := scheduler.NewPubSubHandler(ctx, scheduler.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subName,
			Scheduler:        sched,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub handler")
			}
		}()

		go func() {
			log.Info().
				Str("project", projectID).
				Str("subscription", subName).
				Msg("pubsub trigger handler listening")

			if recvErr := handler.Start(ctx); recvErr != nil && ctx.Err() == nil {
				log.Error().Err(recvErr).Msg("pubsub receive error")
			}
		}()
	}

	sched.Run(ctx)

	log.Info().Msg("worker stopped")
}
