package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"
	_ "time/tzdata" // forecast timezone is resolved at runtime

	"github.com/goccy/go-json"

	"github.com/kjstillabower/aegeanswim-service/internal/circuitbreaker"
	"github.com/kjstillabower/aegeanswim-service/internal/models"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
)

// ForecastClient fetches an hourly forecast series for one coordinate pair.
type ForecastClient interface {
	GetHourlyForecast(ctx context.Context, lat, lon float64) (models.HourlySeries, error)
}

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidRequest    = errors.New("upstream rejected request")
	ErrMalformedResponse = errors.New("malformed forecast response")
)

// hourlyVariables is the fixed set of series requested from Open-Meteo.
const hourlyVariables = "temperature_2m,wind_speed_10m,wind_direction_10m,weather_code"

const upstreamTimeLayout = "2006-01-02T15:04"

type OpenMeteoClient struct {
	apiURL         string
	timezone       string
	location       *time.Location
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewOpenMeteoClient(apiURL, timezone string, timeout time.Duration) (*OpenMeteoClient, error) {
	return NewOpenMeteoClientWithRetry(apiURL, timezone, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOpenMeteoClientWithRetry(apiURL, timezone string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenMeteoClient, error) {
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", apiURL)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &OpenMeteoClient{
		apiURL:         apiURL,
		timezone:       timezone,
		location:       loc,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every upstream attempt with cb. Call before serving.
func (c *OpenMeteoClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// BreakerState reports the breaker state, or "disabled" when none is set.
func (c *OpenMeteoClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State()
}

// Location is the timezone the series timestamps are expressed in.
func (c *OpenMeteoClient) Location() *time.Location {
	return c.location
}

type openMeteoResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
	Hourly *struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		WindDirection []*float64 `json:"wind_direction_10m"`
		WeatherCode   []*float64 `json:"weather_code"`
	} `json:"hourly"`
}

// GetHourlyForecast issues one logical upstream request, retrying transient
// failures with exponential backoff.
func (c *OpenMeteoClient) GetHourlyForecast(ctx context.Context, lat, lon float64) (models.HourlySeries, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ForecastAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.HourlySeries{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.guardedCall(ctx, lat, lon)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.HourlySeries{}, err
		}
	}

	return models.HourlySeries{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) guardedCall(ctx context.Context, lat, lon float64) (models.HourlySeries, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, lat, lon)
	}
	var series models.HourlySeries
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		series, callErr = c.callAPI(ctx, lat, lon)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return models.HourlySeries{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return series, err
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, lat, lon float64) (models.HourlySeries, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon)
	if err != nil {
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		return models.HourlySeries{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ForecastAPICallsTotal.WithLabelValues("error").Inc()
		observability.ForecastAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.HourlySeries{}, fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, err)
		}
		return models.HourlySeries{}, fmt.Errorf("%w: http request failed: %w", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ForecastAPICallsTotal.WithLabelValues(status).Inc()
	observability.ForecastAPIDuration.WithLabelValues(status).Observe(duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.HourlySeries{}, fmt.Errorf("%w: read response body: %w", ErrUpstreamFailure, err)
	}

	if err := c.handleErrorResponse(resp.StatusCode, body); err != nil {
		return models.HourlySeries{}, err
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.HourlySeries{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	return c.mapResponse(apiResp)
}

func (c *OpenMeteoClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrInvalidRequest) {
		return false
	}
	return errors.Is(err, ErrUpstreamFailure)
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("hourly", hourlyVariables)
	params.Set("timezone", c.timezone)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenMeteoClient) handleErrorResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrRateLimited)
	case statusCode >= 400 && statusCode < 500:
		// Open-Meteo explains rejected parameters in {"error":true,"reason":"..."}.
		var apiErr openMeteoResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			return fmt.Errorf("%w: %w: HTTP %d: %s", ErrUpstreamFailure, ErrInvalidRequest, statusCode, apiErr.Reason)
		}
		return fmt.Errorf("%w: %w: HTTP %d", ErrUpstreamFailure, ErrInvalidRequest, statusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
}

// mapResponse converts the parallel arrays into a series, rejecting bodies
// whose arrays are missing, empty or of unequal length.
func (c *OpenMeteoClient) mapResponse(apiResp openMeteoResponse) (models.HourlySeries, error) {
	h := apiResp.Hourly
	if h == nil {
		return models.HourlySeries{}, fmt.Errorf("%w: missing hourly block", ErrMalformedResponse)
	}
	n := len(h.Time)
	if n == 0 {
		return models.HourlySeries{}, fmt.Errorf("%w: empty hourly series", ErrMalformedResponse)
	}
	if len(h.Temperature) != n || len(h.WindSpeed) != n || len(h.WindDirection) != n || len(h.WeatherCode) != n {
		return models.HourlySeries{}, fmt.Errorf("%w: hourly arrays have mismatched lengths", ErrMalformedResponse)
	}

	times := make([]time.Time, n)
	for i, raw := range h.Time {
		ts, err := time.ParseInLocation(upstreamTimeLayout, raw, c.location)
		if err != nil {
			return models.HourlySeries{}, fmt.Errorf("%w: time[%d] %q", ErrMalformedResponse, i, raw)
		}
		times[i] = ts
	}

	return models.HourlySeries{
		Time:          times,
		Temperature:   h.Temperature,
		WindSpeed:     h.WindSpeed,
		WindDirection: h.WindDirection,
		WeatherCode:   h.WeatherCode,
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

