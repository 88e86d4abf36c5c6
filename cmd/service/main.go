package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/aegeanswim-service/internal/cache"
	"github.com/kjstillabower/aegeanswim-service/internal/catalog"
	"github.com/kjstillabower/aegeanswim-service/internal/circuitbreaker"
	"github.com/kjstillabower/aegeanswim-service/internal/client"
	"github.com/kjstillabower/aegeanswim-service/internal/config"
	"github.com/kjstillabower/aegeanswim-service/internal/health"
	httphandler "github.com/kjstillabower/aegeanswim-service/internal/http"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
	"github.com/kjstillabower/aegeanswim-service/internal/recommend"
	"github.com/kjstillabower/aegeanswim-service/internal/service"
)

const breakerComponent = "forecast_api"

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
	observability.SetTrackedIslands(cfg.TrackedIslands)

	forecastClient, err := client.NewOpenMeteoClientWithRetry(
		cfg.WeatherAPIURL,
		cfg.Timezone,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}
	forecastClient.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        breakerComponent,
		OnStateChange: func(from, to string) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from, to)
			logger.Warn("circuit breaker state change", zap.String("from", from), zap.String("to", to))
		},
	}))
	observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)

	store, memcached, err := newCache(cfg)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	forecasts, err := service.NewForecastService(forecastClient, store, service.Options{
		TTL:             cfg.CacheTTL,
		Location:        forecastClient.Location(),
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})
	if err != nil {
		logger.Fatal("forecast service", zap.Error(err))
	}

	beaches, err := catalog.Default()
	if err != nil {
		logger.Fatal("beach catalog", zap.Error(err))
	}
	recommender := recommend.NewRecommender(beaches, forecasts, cfg.MaxConcurrency)
	logger.Info("beach catalog loaded",
		zap.Int("islands", len(beaches.Islands())),
		zap.Int("beaches", beaches.TotalBeaches()),
		zap.Int("max_concurrency", cfg.MaxConcurrency))

	monitorOpts := []health.Option{health.WithBreakerState(forecastClient.BreakerState)}
	if memcached != nil {
		monitorOpts = append(monitorOpts, health.WithCachePing(memcached.Ping))
	}
	monitor := health.NewMonitor(health.Config{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
	}, logger, monitorOpts...)
	observability.RegisterWindowGauges(monitor.WindowCounts())

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if len(cfg.WarmIslands) > 0 {
		startWarming(warmCtx, logger, recommender, cfg.WarmIslands, cfg.WarmInterval)
	}

	inFlight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(forecasts, recommender, beaches, monitor, logger)
	srv := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
			Limiter:        limiter,
			RequestTimeout: cfg.RequestTimeout,
			AllowedOrigins: cfg.AllowedOrigins,
			InFlight:       inFlight,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	monitor.SetShuttingDown(true)
	stopWarming()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if n := inFlight.Count(); n > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", n))
		if err := inFlight.WaitForZero(shutdownCtx, 100*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
		}
	}

	if memcached != nil {
		if err := memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newCache returns the configured backend. The memcached handle is returned
// separately for health pings and shutdown; it is nil for in_memory.
func newCache(cfg *config.Config) (cache.Cache, *cache.MemcachedCache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached: %w", err)
		}
		return mc, mc, nil
	case "in_memory", "":
		return cache.NewInMemoryCache(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// startWarming primes the cache for the configured islands once, then keeps
// refreshing them ahead of TTL expiry until ctx is cancelled.
func startWarming(ctx context.Context, logger *zap.Logger, recommender cache.IslandRecommender, islands []string, interval time.Duration) {
	warmer := cache.NewCacheWarmer(recommender, logger)
	go func() {
		if interval <= 0 {
			if err := warmer.Warm(ctx, islands); err != nil {
				logger.Warn("cache warming failed", zap.Error(err))
			}
			return
		}
		if err := warmer.WarmPeriodic(ctx, islands, interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}()
}
