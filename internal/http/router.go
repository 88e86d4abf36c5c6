package http

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/aegeanswim-service/internal/health"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
)

// RouterOptions configures the middleware chain around the handlers.
type RouterOptions struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // 0 disables the per-request deadline on /api/weather
	AllowedOrigins []string
	InFlight       *InFlightTracker
}

// NewRouter wires every route. Catalog routes with fixed segments are
// registered before /api/beaches/{island} so they are not captured by it.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) http.Handler {
	if logger == nil {
		logger = h.logger
	}
	var tracker *health.Tracker
	if h.monitor != nil {
		tracker = h.monitor.Tracker()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(opts.InFlight))

	router.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter, tracker))
	api.Use(OutcomeMiddleware(tracker))

	weather := api.PathPrefix("/weather").Subrouter()
	if opts.RequestTimeout > 0 {
		weather.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	weather.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	weather.HandleFunc("/recommendations", h.GetRecommendations).Methods(http.MethodGet)

	beaches := api.PathPrefix("/beaches").Subrouter()
	beaches.HandleFunc("", h.ListBeaches).Methods(http.MethodGet)
	beaches.HandleFunc("/islands/list", h.ListIslands).Methods(http.MethodGet)
	beaches.HandleFunc("/search/{query}", h.SearchBeaches).Methods(http.MethodGet)
	beaches.HandleFunc("/{island}", h.GetIslandBeaches).Methods(http.MethodGet)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", correlationHeader},
		ExposedHeaders:   []string{correlationHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)
}
