package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/aegeanswim-service/internal/cache"
	"github.com/kjstillabower/aegeanswim-service/internal/client"
	"github.com/kjstillabower/aegeanswim-service/internal/models"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
)

// ErrInvalidQuery is returned when a query cannot be turned into a target hour.
var ErrInvalidQuery = errors.New("invalid forecast query")

// DefaultSource is reported on every reading.
const DefaultSource = "Open-Meteo"

// ForecastQuery asks for the reading at one location and hour. Empty Date
// means now; empty TimeSlot means the default hour.
type ForecastQuery struct {
	Lat      float64
	Lon      float64
	Date     string
	TimeSlot string
}

// Options configures a ForecastService. Zero values pick defaults.
type Options struct {
	TTL             time.Duration  // default 30m
	Location        *time.Location // timezone of series timestamps; default Europe/Athens
	Clock           clockwork.Clock
	Source          string
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// ForecastService resolves hourly readings using the cache-aside pattern
// over a ForecastClient.
type ForecastService struct {
	client          client.ForecastClient
	cache           cache.Cache
	ttl             time.Duration
	location        *time.Location
	clock           clockwork.Clock
	source          string
	misses          *missTracker
	coalescer       *requestCoalescer // nil when disabled
}

// NewForecastService creates a ForecastService with the provided dependencies.
func NewForecastService(c client.ForecastClient, store cache.Cache, opts Options) (*ForecastService, error) {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Location == nil {
		loc, err := time.LoadLocation("Europe/Athens")
		if err != nil {
			return nil, fmt.Errorf("load default timezone: %w", err)
		}
		opts.Location = loc
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	var coalescer *requestCoalescer
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return &ForecastService{
		client:          c,
		cache:           store,
		ttl:             opts.TTL,
		location:        opts.Location,
		clock:           opts.Clock,
		source:          opts.Source,
		misses:          newMissTracker(),
		coalescer:       coalescer,
	}, nil
}

// Resolve returns the reading for q. A live cache entry is returned as
// stored with Cached set; otherwise the series is fetched, the target hour
// resolved and the result cached for the TTL. If ctx ends first Resolve
// returns its error, but the fetch still completes and fills the cache.
func (s *ForecastService) Resolve(ctx context.Context, q ForecastQuery) (models.WeatherReading, error) {
	key := CacheKey(q)
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	target, err := TargetTime(q, s.clock.Now(), s.location)
	if err != nil {
		return models.WeatherReading{}, err
	}

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("forecast").Inc()
		logger.Debug("cache hit", zap.String("key", key))
		cached.Cached = true
		return cached, nil
	}
	observability.CacheMissesTotal.WithLabelValues("forecast").Inc()

	// The fill runs detached so a caller that gives up still leaves the
	// reading cached for the next one.
	type outcome struct {
		reading models.WeatherReading
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		reading, err := s.fill(context.WithoutCancel(ctx), key, q, target, start)
		done <- outcome{reading, err}
	}()

	select {
	case out := <-done:
		return out.reading, out.err
	case <-ctx.Done():
		logger.Debug("caller gone, fill continues", zap.String("key", key), zap.Error(ctx.Err()))
		return models.WeatherReading{}, fmt.Errorf("resolve forecast for %s: %w", key, ctx.Err())
	}
}

// fill fetches the series, picks the target hour and caches the reading.
func (s *ForecastService) fill(ctx context.Context, key string, q ForecastQuery, target, start time.Time) (models.WeatherReading, error) {
	logger := observability.LoggerFromContext(ctx)

	concurrentMisses, release := s.misses.Begin(key)
	defer release()
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		observability.CacheStampedeConcurrency.Observe(float64(concurrentMisses))
	}

	logger.Debug("cache miss, fetching upstream", zap.String("key", key))

	series, err := s.fetch(ctx, q.Lat, q.Lon)
	if err != nil {
		observability.ForecastAPIErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return models.WeatherReading{}, fmt.Errorf("fetch forecast for %s: %w", key, err)
	}

	reading, err := buildReading(series, ResolveHour(series, target), q.Lat, q.Lon, s.source)
	if err != nil {
		observability.ForecastAPIErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return models.WeatherReading{}, fmt.Errorf("resolve forecast for %s: %w", key, err)
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, reading, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return reading, nil
}

// fetch calls upstream, sharing one call per coordinate pair when coalescing
// is enabled. The series depends only on coordinates, so queries for
// different hours at the same beach share a fetch.
func (s *ForecastService) fetch(ctx context.Context, lat, lon float64) (models.HourlySeries, error) {
	if s.coalescer == nil {
		return s.client.GetHourlyForecast(ctx, lat, lon)
	}
	series, shared, err := s.coalescer.GetOrDo(ctx, coordKey(lat, lon), func(fctx context.Context) (models.HourlySeries, error) {
		return s.client.GetHourlyForecast(fctx, lat, lon)
	})
	if shared && err == nil {
		observability.RequestCoalescingHitsTotal.Inc()
	}
	return series, err
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
