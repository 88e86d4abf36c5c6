package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/aegeanswim-service/internal/catalog"
	"github.com/kjstillabower/aegeanswim-service/internal/health"
	"github.com/kjstillabower/aegeanswim-service/internal/models"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
	"github.com/kjstillabower/aegeanswim-service/internal/recommend"
	"github.com/kjstillabower/aegeanswim-service/internal/service"
	"github.com/kjstillabower/aegeanswim-service/internal/validation"
)

const (
	serviceName    = "aegeanswim-service"
	serviceVersion = "1.0.0"
)

// ForecastResolver resolves a single-point forecast.
type ForecastResolver interface {
	Resolve(ctx context.Context, q service.ForecastQuery) (models.WeatherReading, error)
}

// IslandRecommender ranks an island's beaches.
type IslandRecommender interface {
	Recommend(ctx context.Context, island, date, slot string) (models.IslandRecommendations, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts   ForecastResolver
	recommender IslandRecommender
	catalog     *catalog.Catalog
	monitor     *health.Monitor
	logger      *zap.Logger
}

// NewHandler returns a new Handler. monitor may be nil, in which case /health
// always reports healthy.
func NewHandler(
	forecasts ForecastResolver,
	recommender IslandRecommender,
	cat *catalog.Catalog,
	monitor *health.Monitor,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		forecasts:   forecasts,
		recommender: recommender,
		catalog:     cat,
		monitor:     monitor,
		logger:      logger,
	}
}

// GetForecast handles GET /api/weather/forecast?lat=&lon=&date=&time=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := validation.ValidateForecast(validation.ForecastRequest{
		Lat:  q.Get("lat"),
		Lon:  q.Get("lon"),
		Date: q.Get("date"),
		Time: q.Get("time"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	reading, err := h.forecasts.Resolve(r.Context(), service.ForecastQuery{
		Lat:      params.Lat,
		Lon:      params.Lon,
		Date:     params.Date,
		TimeSlot: params.Time,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// GetRecommendations handles GET /api/weather/recommendations?island=&date=&time=.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := validation.ValidateRecommendation(validation.RecommendationRequest{
		Island: q.Get("island"),
		Date:   q.Get("date"),
		Time:   q.Get("time"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.recommender.Recommend(r.Context(), req.Island, req.Date, req.Time)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListBeaches handles GET /api/beaches with optional protection and
// meltemiShield filters.
func (h *Handler) ListBeaches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := validation.BeachFilterRequest{
		Protection:    q.Get("protection"),
		MeltemiShield: q.Get("meltemiShield"),
	}
	if err := validation.ValidateBeachFilter(filter); err != nil {
		writeServiceError(w, r, err)
		return
	}

	beaches := nonNil(h.catalog.All(catalog.Filter{
		Protection:    models.ProtectionLevel(filter.Protection),
		MeltemiShield: models.MeltemiShield(filter.MeltemiShield),
	}))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    len(beaches),
		"beaches":  beaches,
		"metadata": h.catalog.Metadata(),
	})
}

// ListIslands handles GET /api/beaches/islands/list.
func (h *Handler) ListIslands(w http.ResponseWriter, r *http.Request) {
	islands := h.catalog.Islands()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(islands),
		"islands": islands,
	})
}

// SearchBeaches handles GET /api/beaches/search/{query}.
func (h *Handler) SearchBeaches(w http.ResponseWriter, r *http.Request) {
	query, err := validation.ValidateSearchQuery(mux.Vars(r)["query"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	beaches := nonNil(h.catalog.Search(query))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"total":   len(beaches),
		"beaches": beaches,
	})
}

// GetIslandBeaches handles GET /api/beaches/{island}.
func (h *Handler) GetIslandBeaches(w http.ResponseWriter, r *http.Request) {
	island := mux.Vars(r)["island"]
	beaches, err := h.catalog.Beaches(island)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"island":  island,
		"total":   len(beaches),
		"beaches": beaches,
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Report{
		Status:     health.StatusHealthy,
		HTTPStatus: http.StatusOK,
		Checks:     map[string]string{},
	}
	if h.monitor != nil {
		report = h.monitor.Check()
	}
	writeJSON(w, report.HTTPStatus, map[string]interface{}{
		"status":    report.Status,
		"service":   serviceName,
		"version":   serviceVersion,
		"checks":    report.Checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetRoot handles GET / with a short description of the API.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "AegeanSwim API",
		"version":     serviceVersion,
		"description": "Find sheltered swimming beaches in the Aegean from hourly wind forecasts",
		"endpoints": map[string]interface{}{
			"beaches": map[string]string{
				"list":     "GET /api/beaches?protection={level}&meltemiShield={rating}",
				"byIsland": "GET /api/beaches/{island}",
				"islands":  "GET /api/beaches/islands/list",
				"search":   "GET /api/beaches/search/{query}",
			},
			"weather": map[string]string{
				"forecast":        "GET /api/weather/forecast?lat={lat}&lon={lon}&date={date}&time={time}",
				"recommendations": "GET /api/weather/recommendations?island={island}&date={date}&time={time}",
			},
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

// NotFound answers unknown routes with the standard error body.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Cannot "+r.Method+" "+r.URL.Path)
}

// MethodNotAllowed answers known routes called with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Cannot "+r.Method+" "+r.URL.Path)
}

func nonNil(beaches []models.Beach) []models.Beach {
	if beaches == nil {
		return []models.Beach{}
	}
	return beaches
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps domain errors onto status codes. Anything unrecognised
// is treated as an upstream failure.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, service.ErrInvalidQuery):
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, catalog.ErrUnknownIsland):
		writeError(w, r, http.StatusNotFound, "ISLAND_NOT_FOUND",
			err.Error()+". Available islands are listed at /api/beaches/islands/list")
	case errors.Is(err, recommend.ErrNoRecommendations):
		logger.Warn("no recommendations", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "NO_RECOMMENDATIONS", "Unable to generate beach recommendations")
	default:
		logger.Debug("upstream error", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
