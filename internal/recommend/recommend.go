// Package recommend ranks the beaches of an island by current swimming
// conditions.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
	"github.com/kjstillabower/aegeanswim-service/internal/protection"
	"github.com/kjstillabower/aegeanswim-service/internal/service"
)

// ErrNoRecommendations is returned when every beach lookup for an island failed.
var ErrNoRecommendations = errors.New("no recommendations available")

// BeachSource lists the beaches of an island in catalog order.
type BeachSource interface {
	Beaches(island string) ([]models.Beach, error)
}

// ForecastResolver resolves one reading. Implemented by service.ForecastService.
type ForecastResolver interface {
	Resolve(ctx context.Context, q service.ForecastQuery) (models.WeatherReading, error)
}

// Recommender fans out one forecast lookup per beach and ranks the survivors.
type Recommender struct {
	beaches        BeachSource
	forecasts      ForecastResolver
	maxConcurrency int
}

// NewRecommender creates a Recommender. maxConcurrency caps in-flight lookups
// per call; 0 issues them all at once.
func NewRecommender(beaches BeachSource, forecasts ForecastResolver, maxConcurrency int) *Recommender {
	if maxConcurrency < 0 {
		maxConcurrency = 0
	}
	return &Recommender{beaches: beaches, forecasts: forecasts, maxConcurrency: maxConcurrency}
}

// Recommend ranks every beach on island for the given date and slot (both
// optional). An invalid date fails before any lookup. Beaches whose lookup
// fails are logged and left out; the call fails only if none survive.
func (r *Recommender) Recommend(ctx context.Context, island, date, slot string) (models.IslandRecommendations, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx).With(zap.String("island", island))

	if err := service.ValidateQuery(service.ForecastQuery{Date: date, TimeSlot: slot}); err != nil {
		observability.RecordRecommendation(island, "invalid_query")
		return models.IslandRecommendations{}, err
	}

	beaches, err := r.beaches.Beaches(island)
	if err != nil {
		observability.RecordRecommendation(island, "unknown_island")
		return models.IslandRecommendations{}, err
	}
	observability.RecommendationFanout.Observe(float64(len(beaches)))

	results := r.lookup(ctx, logger, beaches, date, slot)

	var survivors []models.Recommendation
	for _, rec := range results {
		if rec != nil {
			survivors = append(survivors, *rec)
		}
	}
	if dropped := len(beaches) - len(survivors); dropped > 0 {
		observability.BeachLookupsDroppedTotal.WithLabelValues(observability.IslandLabel(island)).Add(float64(dropped))
	}
	if len(survivors) == 0 {
		observability.RecordRecommendation(island, "no_recommendations")
		return models.IslandRecommendations{}, fmt.Errorf("%w for %s", ErrNoRecommendations, island)
	}

	Rank(survivors)
	out := Summarize(strings.ToLower(strings.TrimSpace(island)), date, slot, survivors)

	observability.RecommendationDuration.Observe(time.Since(start).Seconds())
	observability.RecordRecommendation(island, "success")
	logger.Debug("recommendations computed",
		zap.Int("beaches", len(beaches)),
		zap.Int("survivors", len(survivors)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// lookup resolves every beach concurrently and waits for all of them. Slot i
// of the result is nil when beach i failed. Lookups run detached from the
// caller's cancellation so abandoned requests still fill the cache.
func (r *Recommender) lookup(ctx context.Context, logger *zap.Logger, beaches []models.Beach, date, slot string) []*models.Recommendation {
	results := make([]*models.Recommendation, len(beaches))

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	detached := context.WithoutCancel(ctx)
	for i, beach := range beaches {
		g.Go(func() error {
			reading, err := r.forecasts.Resolve(detached, service.ForecastQuery{
				Lat:      beach.Lat,
				Lon:      beach.Lon,
				Date:     date,
				TimeSlot: slot,
			})
			if err != nil {
				logger.Warn("beach lookup failed, dropping",
					zap.String("beach", beach.Name),
					zap.Error(err))
				return nil
			}
			rec := Build(beach, reading)
			results[i] = &rec
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Build assesses one beach under reading.
func Build(beach models.Beach, reading models.WeatherReading) models.Recommendation {
	p := protection.Compute(beach, float64(reading.WindDirection), reading.WindSpeed)
	return models.Recommendation{
		Name:        beach.Name,
		Description: beach.Description,
		Location:    models.Location{Lat: beach.Lat, Lon: beach.Lon},
		Weather:     reading,
		Protection:  p,
		Score:       p.SwimmabilityScore,
		Island:      beach.Island,
	}
}

// Rank sorts recs by score, best first. Equal scores keep their order.
func Rank(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
}

// Summarize builds the island result from ranked, non-empty recs.
func Summarize(island, date, slot string, recs []models.Recommendation) models.IslandRecommendations {
	if date == "" {
		date = "today"
	}
	if slot == "" {
		slot = service.CurrentSentinel
	}

	var sum float64
	meltemi := false
	for _, rec := range recs {
		sum += rec.Weather.Temperature
		if rec.Protection.IsMeltemiConditions {
			meltemi = true
		}
	}

	return models.IslandRecommendations{
		Island:             island,
		Date:               date,
		Time:               slot,
		TotalBeaches:       len(recs),
		AverageTemperature: models.RoundTo(sum/float64(len(recs)), 1),
		MeltemiConditions:  meltemi,
		TopRecommendation:  recs[0],
		AllRecommendations: recs,
	}
}
