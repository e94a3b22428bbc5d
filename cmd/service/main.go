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

	"github.com/kjstillabower/smartstore-copilot/internal/circuitbreaker"
	"github.com/kjstillabower/smartstore-copilot/internal/client"
	"github.com/kjstillabower/smartstore-copilot/internal/config"
	httphandler "github.com/kjstillabower/smartstore-copilot/internal/http"
	"github.com/kjstillabower/smartstore-copilot/internal/lifecycle"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
	"github.com/kjstillabower/smartstore-copilot/internal/service"
	"github.com/kjstillabower/smartstore-copilot/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger("api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	shutdownTracing, err := observability.SetupTracing(observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ZipkinURL:   cfg.TracingZipkinURL,
		ServiceName: cfg.TracingServiceName,
	})
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}

	if cfg.WeatherAPIKey == "" {
		logger.Warn("WEATHER_API_KEY not set; weather lookups will be rejected by the provider")
	}
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	tracker := traffic.New(max(cfg.DegradedWindow, cfg.OverloadWindow))
	state := &lifecycle.State{}
	inflight := &httphandler.InFlightTracker{}

	handler := httphandler.NewHandler(httphandler.Services{
		Inventory: service.NewInventoryService(cfg.InventoryFile, cfg.LowStockThreshold),
		Drivers:   service.NewDriverService(cfg.DriversFile),
		Sentiment: service.NewSentimentService(cfg.ReviewsFile),
		Weather:   service.NewWeatherService(weatherClient),
		Chatbot:   service.NewChatbotService(),
	}, healthConfig(cfg), logger, tracker, state)

	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		RequestTimeout:     cfg.RequestTimeout,
		RateLimiter:        newLimiter(cfg),
		Traffic:            tracker,
		InFlight:           inflight,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("data_dir", cfg.DataDir),
			zap.Int("low_stock_threshold", cfg.LowStockThreshold))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inflight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inflight.WaitForZero(waitCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Count()))
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger, shutdownTracing); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func healthConfig(cfg *config.Config) httphandler.HealthConfig {
	return httphandler.HealthConfig{
		DataDir:          cfg.DataDir,
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		CityMaxLength:    cfg.CityMaxLength,

		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
	}
}

// newLimiter returns the weather route's token bucket, or nil when
// RateLimitRPS is 0 so the route is not limited.
func newLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}
