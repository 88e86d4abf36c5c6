package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
)

// IslandRecommender is implemented by the recommend package. Computing an
// island's current recommendations resolves (and so caches) a reading for
// every beach on it. Kept as an interface to avoid an import cycle.
type IslandRecommender interface {
	Recommend(ctx context.Context, island, date, slot string) (models.IslandRecommendations, error)
}

// CacheWarmer pre-fetches current readings for a list of islands.
type CacheWarmer struct {
	recommender IslandRecommender
	logger      *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given recommender and logger.
func NewCacheWarmer(recommender IslandRecommender, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{recommender: recommender, logger: logger}
}

// Warm computes current recommendations for each island concurrently.
// Returns the joined per-island errors, if any.
func (w *CacheWarmer) Warm(ctx context.Context, islands []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("islands", len(islands)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, island := range islands {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.recommender.Recommend(ctx, island, "", ""); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", island, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("islands", len(islands)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))

	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, islands []string, interval time.Duration) error {
	if err := w.Warm(ctx, islands); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, islands); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
