package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/aegeanswim-service/internal/circuitbreaker"
	"github.com/kjstillabower/aegeanswim-service/internal/observability"
)

const sampleForecast = `{
  "latitude": 37.1,
  "longitude": 25.4,
  "timezone": "Europe/Athens",
  "hourly": {
    "time": ["2025-07-01T00:00", "2025-07-01T01:00", "2025-07-01T02:00"],
    "temperature_2m": [24.1, 23.8, null],
    "wind_speed_10m": [12.4, null, 30.2],
    "wind_direction_10m": [350, 10, 15],
    "weather_code": [0, 1, 61]
  }
}`

func newTestClient(t *testing.T, url string, attempts int) *OpenMeteoClient {
	t.Helper()
	c, err := NewOpenMeteoClientWithRetry(url, "Europe/Athens", 2*time.Second, attempts, 10*time.Millisecond, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenMeteoClientWithRetry() error = %v", err)
	}
	return c
}

func TestNewOpenMeteoClient_Validation(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		timezone string
		wantErr  bool
	}{
		{"valid", "https://api.open-meteo.com/v1/forecast", "Europe/Athens", false},
		{"empty url", "", "Europe/Athens", true},
		{"unknown timezone", "https://api.open-meteo.com/v1/forecast", "Mars/Olympus", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewOpenMeteoClient(tt.url, tt.timezone, time.Second)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewOpenMeteoClient() expected error, got nil")
				}
				if c != nil {
					t.Error("NewOpenMeteoClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenMeteoClient() unexpected error: %v", err)
			}
		})
	}
}

func TestOpenMeteoClient_GetHourlyForecast_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("latitude") != "37.0853" || q.Get("longitude") != "25.1482" {
			t.Errorf("unexpected coordinates in query: %s", r.URL.RawQuery)
		}
		if q.Get("hourly") != "temperature_2m,wind_speed_10m,wind_direction_10m,weather_code" {
			t.Errorf("hourly = %q", q.Get("hourly"))
		}
		if q.Get("timezone") != "Europe/Athens" {
			t.Errorf("timezone = %q", q.Get("timezone"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	got, err := c.GetHourlyForecast(context.Background(), 37.0853, 25.1482)
	if err != nil {
		t.Fatalf("GetHourlyForecast() error = %v", err)
	}

	if got.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", got.Len())
	}
	athens, _ := time.LoadLocation("Europe/Athens")
	want := time.Date(2025, 7, 1, 1, 0, 0, 0, athens)
	if !got.Time[1].Equal(want) {
		t.Errorf("Time[1] = %v, want %v", got.Time[1], want)
	}
	if got.WindSpeed[0] == nil || *got.WindSpeed[0] != 12.4 {
		t.Errorf("WindSpeed[0] = %v, want 12.4", got.WindSpeed[0])
	}
	if got.WindSpeed[1] != nil {
		t.Errorf("WindSpeed[1] = %v, want nil for null", *got.WindSpeed[1])
	}
	if got.Temperature[2] != nil {
		t.Errorf("Temperature[2] = %v, want nil for null", *got.Temperature[2])
	}
	if got.WeatherCode[2] == nil || *got.WeatherCode[2] != 61 {
		t.Errorf("WeatherCode[2] = %v, want 61", got.WeatherCode[2])
	}
}

func TestOpenMeteoClient_GetHourlyForecast_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
		retryable  bool
	}{
		{"400 bad request", http.StatusBadRequest, `{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`, ErrInvalidRequest, false},
		{"429 rate limited", http.StatusTooManyRequests, "", ErrRateLimited, true},
		{"500 server error", http.StatusInternalServerError, "", ErrUpstreamFailure, true},
		{"502 bad gateway", http.StatusBadGateway, "", ErrUpstreamFailure, true},
		{"503 unavailable", http.StatusServiceUnavailable, "", ErrUpstreamFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 1)
			_, err := c.GetHourlyForecast(context.Background(), 37, 25)
			if err == nil {
				t.Fatal("GetHourlyForecast() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetHourlyForecast() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrUpstreamFailure) {
				t.Errorf("GetHourlyForecast() error = %v, want it to wrap ErrUpstreamFailure", err)
			}
			if got := c.isRetryable(err); got != tt.retryable {
				t.Errorf("isRetryable() = %v, want %v for %v", got, tt.retryable, err)
			}
		})
	}
}

func TestOpenMeteoClient_GetHourlyForecast_InvalidRequestReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Cannot initialize WeatherVariable from invalid String value"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	_, err := c.GetHourlyForecast(context.Background(), 37, 25)
	if err == nil || !strings.Contains(err.Error(), "Cannot initialize WeatherVariable") {
		t.Errorf("GetHourlyForecast() error = %v, want upstream reason in message", err)
	}
}

func TestOpenMeteoClient_GetHourlyForecast_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"hourly":`},
		{"missing hourly", `{"latitude":37}`},
		{"empty series", `{"hourly":{"time":[],"temperature_2m":[],"wind_speed_10m":[],"wind_direction_10m":[],"weather_code":[]}}`},
		{"mismatched lengths", `{"hourly":{"time":["2025-07-01T00:00","2025-07-01T01:00"],"temperature_2m":[20],"wind_speed_10m":[5,6],"wind_direction_10m":[0,0],"weather_code":[0,0]}}`},
		{"bad time", `{"hourly":{"time":["yesterday"],"temperature_2m":[20],"wind_speed_10m":[5],"wind_direction_10m":[0],"weather_code":[0]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 3)
			_, err := c.GetHourlyForecast(context.Background(), 37, 25)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("GetHourlyForecast() error = %v, want ErrMalformedResponse", err)
			}
			if n := attempts.Load(); n != 1 {
				t.Errorf("expected 1 attempt (no retry on malformed body), got %d", n)
			}
		})
	}
}

func TestOpenMeteoClient_GetHourlyForecast_RetryLogic(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	got, err := c.GetHourlyForecast(context.Background(), 37, 25)
	if err != nil {
		t.Fatalf("GetHourlyForecast() error = %v", err)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if got.Len() != 3 {
		t.Errorf("Len() = %d, want 3", got.Len())
	}
}

func TestOpenMeteoClient_GetHourlyForecast_ExhaustedRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	_, err := c.GetHourlyForecast(context.Background(), 37, 25)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("GetHourlyForecast() error = %v, want ErrUpstreamFailure", err)
	}
	if !strings.Contains(err.Error(), "exhausted retries") {
		t.Errorf("GetHourlyForecast() error = %v, want 'exhausted retries'", err)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestOpenMeteoClient_GetHourlyForecast_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetHourlyForecast(ctx, 37, 25)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetHourlyForecast() error = %v, want context.Canceled", err)
	}
}

func TestOpenMeteoClient_GetHourlyForecast_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer server.Close()

	c, err := NewOpenMeteoClientWithRetry(server.URL, "Europe/Athens", 50*time.Millisecond, 1, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenMeteoClientWithRetry() error = %v", err)
	}
	_, err = c.GetHourlyForecast(context.Background(), 37, 25)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("GetHourlyForecast() error = %v, want ErrUpstreamFailure", err)
	}
	if CategorizeError(err) != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", CategorizeError(err))
	}
}

func TestOpenMeteoClient_GetHourlyForecast_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	ctx := observability.WithCorrelationID(context.Background(), "test-correlation-id-123")
	if _, err := c.GetHourlyForecast(ctx, 37, 25); err != nil {
		t.Fatalf("GetHourlyForecast() error = %v", err)
	}
	if captured != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", captured, "test-correlation-id-123")
	}
}

func TestOpenMeteoClient_CircuitBreaker_ShortCircuits(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
		Component:        "client_test",
	}))

	for i := 0; i < 2; i++ {
		_, _ = c.GetHourlyForecast(context.Background(), 37, 25)
	}
	if c.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %q, want open", c.BreakerState())
	}

	_, err := c.GetHourlyForecast(context.Background(), 37, 25)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("GetHourlyForecast() error = %v, want circuitbreaker.ErrOpen", err)
	}
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetHourlyForecast() error = %v, want it to wrap ErrUpstreamFailure", err)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("upstream attempts = %d, want 2 (third call short-circuited)", n)
	}
}

func TestOpenMeteoClient_BreakerState_Disabled(t *testing.T) {
	c := newTestClient(t, "https://api.open-meteo.com/v1/forecast", 1)
	if got := c.BreakerState(); got != "disabled" {
		t.Errorf("BreakerState() = %q, want disabled", got)
	}
}

func TestOpenMeteoClient_calculateBackoff(t *testing.T) {
	c := &OpenMeteoClient{
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
	}

	tests := []struct {
		name    string
		attempt int
		wantMax time.Duration
	}{
		{"first retry", 1, 110 * time.Millisecond},
		{"second retry", 2, 220 * time.Millisecond},
		{"third retry", 3, 440 * time.Millisecond},
		{"capped", 10, 2200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.calculateBackoff(tt.attempt)
			if got > tt.wantMax {
				t.Errorf("calculateBackoff(%d) = %v, want <= %v", tt.attempt, got, tt.wantMax)
			}
			if got <= 0 {
				t.Errorf("calculateBackoff(%d) = %v, want > 0", tt.attempt, got)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		429: "rate_limited",
		404: "client_error",
		503: "server_error",
		302: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
