// Package main provides the entrypoint for the AirSentry API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/airsentry/airsentry/internal/airquality"
	"github.com/airsentry/airsentry/internal/api"
	"github.com/airsentry/airsentry/internal/api/middleware"
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
	"github.com/airsentry/airsentry/internal/telemetry"
	"github.com/airsentry/airsentry/internal/weather"
	"github.com/airsentry/airsentry/internal/weather/openweathermap"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airsentry-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting AirSentry API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Upstream clients share a health registry so /ops/status can report
	// per-provider circuit state.
	health := resilience.NewRegistry()
	disableMock := os.Getenv("DISABLE_MOCK_FALLBACK") == "true"

	satelliteHTTP := resilience.NewClient(resilience.ClientConfig{
		Name:            "satellite",
		Timeout:         30 * time.Second,
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	})
	health.Register("TEMPO", satelliteHTTP)
	airnowHTTP := resilience.NewClient(resilience.ClientConfig{
		Name:            "airnow",
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	})
	health.Register("AirNow", airnowHTTP)
	openaqHTTP := resilience.NewClient(resilience.ClientConfig{
		Name:            "openaq",
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	})
	health.Register("OpenAQ", openaqHTTP)

	airQuality := airquality.NewService(airquality.ServiceConfig{
		Satellite: satellite.NewClient(satellite.ClientConfig{
			BaseURL:     os.Getenv("TEMPO_BASE_URL"),
			APIKey:      os.Getenv("TEMPO_API_KEY"),
			HTTPClient:  satelliteHTTP,
			DisableMock: disableMock,
			Logger:      log,
		}),
		GroundA: airnow.NewClient(airnow.ClientConfig{
			BaseURL:    os.Getenv("AIRNOW_BASE_URL"),
			APIKey:     os.Getenv("AIRNOW_API_KEY"),
			HTTPClient: airnowHTTP,
			Logger:     log,
		}),
		GroundB: openaq.NewClient(openaq.ClientConfig{
			BaseURL:     os.Getenv("OPENAQ_BASE_URL"),
			APIKey:      os.Getenv("OPENAQ_API_KEY"),
			HTTPClient:  openaqHTTP,
			DisableMock: disableMock,
			Logger:      log,
		}),
		Logger: log,
	})
	log.Info().Bool("mock_fallback", !disableMock).Msg("air quality pipeline initialized")

	var weatherService *weather.Service
	if owmKey := os.Getenv("OPENWEATHERMAP_API_KEY"); owmKey != "" {
		owmHTTP := resilience.NewClient(resilience.ClientConfig{
			Name:            "openweathermap",
			Timeout:         15 * time.Second,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		})
		health.Register("OpenWeatherMap", owmHTTP)
		weatherService = weather.NewService(weather.ServiceConfig{
			Provider: openweathermap.NewClient(openweathermap.ClientConfig{
				APIKey:     owmKey,
				HTTPClient: owmHTTP,
				Logger:     log,
			}),
			Logger: log,
		})
		log.Info().Msg("weather service initialized")
	} else {
		log.Warn().Msg("OPENWEATHERMAP_API_KEY not set - forecasts run without weather features")
	}

	// Subscriber persistence is optional; without a database the registry is
	// purely in-memory.
	var repo subscription.Repository
	if os.Getenv("DB_ENABLED") == "true" {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		repo = subscription.NewPostgresRepository(pool)
		log.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
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
	engine := forecast.NewEngine(forecast.EngineConfig{Logger: log})

	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		AirQuality: airQuality,
		Weather:    weatherService,
		Engine:     engine,
		Registry:   registry,
		Dispatcher: dispatcher,
		Bus:        bus,
	})

	schedCtx, stopScheduler := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(schedCtx)
	}()

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		AirQuality:  airQuality,
		Weather:     weatherService,
		Engine:      engine,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Bus:         bus,
		Scheduler:   sched,
		Health:      health,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	stopScheduler()
	<-schedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
