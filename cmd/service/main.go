package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/pastcast-service/internal/assistant"
	"github.com/kjstillabower/pastcast-service/internal/circuitbreaker"
	"github.com/kjstillabower/pastcast-service/internal/config"
	"github.com/kjstillabower/pastcast-service/internal/geocode"
	"github.com/kjstillabower/pastcast-service/internal/health"
	httphandler "github.com/kjstillabower/pastcast-service/internal/http"
	"github.com/kjstillabower/pastcast-service/internal/observability"
	"github.com/kjstillabower/pastcast-service/internal/service"
	"github.com/kjstillabower/pastcast-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	if len(cfg.TrackedCities) > 0 {
		metrics.SetTrackedCities(cfg.TrackedCities)
	}

	var geocoder geocode.Geocoder
	if cfg.GeocodingEnabled {
		nominatim, err := geocode.NewNominatimClient(geocode.Config{
			BaseURL:        cfg.GeocodingURL,
			UserAgent:      cfg.GeocodingUserAgent,
			Timeout:        cfg.GeocodingTimeout,
			RetryAttempts:  cfg.GeocodingRetryAttempts,
			RetryBaseDelay: cfg.GeocodingRetryBaseDelay,
			RetryMaxDelay:  cfg.GeocodingRetryMaxDelay,
			Breaker: circuitbreaker.Config{
				FailureThreshold: cfg.CircuitBreakerFailureThreshold,
				SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
				Timeout:          cfg.CircuitBreakerTimeout,
				OnStateChange: func(from, to circuitbreaker.State) {
					logger.Warn("circuit breaker state change",
						zap.String("component", geocode.BreakerComponent),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			},
		}, metrics)
		if err != nil {
			logger.Fatal("geocoder", zap.Error(err))
		}
		geocoder = nominatim
		logger.Info("geocoding enabled",
			zap.String("url", cfg.GeocodingURL),
			zap.Bool("enrich_missing_city", cfg.GeocodingEnrichMissingCity),
			zap.Int("breaker_failure_threshold", cfg.CircuitBreakerFailureThreshold))
	} else {
		logger.Info("geocoding disabled")
	}

	sampler := assistant.NewSeededSampler(cfg.SamplerSeed)
	forecastService := service.NewForecastService(geocoder, sampler, metrics, service.Config{
		EnrichMissingCity: cfg.GeocodingEnrichMissingCity,
		EnrichTimeout:     cfg.GeocodingTimeout,
	})

	tracker := traffic.NewTracker(nil, traffic.DefaultRetention)
	monitor := health.NewMonitor(health.Config{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
	}, tracker, logger)
	metrics.RegisterTrafficGauges(tracker, cfg.OverloadWindow)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(forecastService, monitor, logger, limiter, metrics)

	inFlight := httphandler.NewInFlightTracker()
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		TestingMode:    cfg.TestingMode,
		InFlight:       inFlight,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.CORS(cfg.CORSAllowedOrigins)(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.Strings("cors_allowed_origins", cfg.CORSAllowedOrigins))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	monitor.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
