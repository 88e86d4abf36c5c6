package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
)

type mockRecommender struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (m *mockRecommender) Recommend(ctx context.Context, island, date, slot string) (models.IslandRecommendations, error) {
	m.mu.Lock()
	m.calls = append(m.calls, island+"|"+date+"|"+slot)
	m.mu.Unlock()
	if err := m.fail[island]; err != nil {
		return models.IslandRecommendations{}, err
	}
	return models.IslandRecommendations{Island: island}, nil
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	rec := &mockRecommender{}
	warmer := NewCacheWarmer(rec, nil)

	if err := warmer.Warm(context.Background(), []string{"naxos", "paros"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("Recommend called %d times, want 2", len(rec.calls))
	}
	for _, c := range rec.calls {
		if !strings.HasSuffix(c, "||") {
			t.Errorf("Recommend call %q, want current date and slot", c)
		}
	}
}

func TestCacheWarmer_Warm_EmptyIslands(t *testing.T) {
	warmer := NewCacheWarmer(&mockRecommender{}, nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, nil); err != nil {
		t.Fatalf("Warm() with nil islands error = %v, want nil", err)
	}
	if err := warmer.Warm(ctx, []string{}); err != nil {
		t.Fatalf("Warm() with empty islands error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_PartialFailure(t *testing.T) {
	apiDown := errors.New("api down")
	rec := &mockRecommender{fail: map[string]error{"milos": apiDown}}
	core, logs := observer.New(zap.InfoLevel)
	warmer := NewCacheWarmer(rec, zap.New(core))

	err := warmer.Warm(context.Background(), []string{"naxos", "milos"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, apiDown) {
		t.Errorf("Warm() error = %v, want it to wrap the island failure", err)
	}
	if !strings.Contains(err.Error(), "warm milos") {
		t.Errorf("Warm() error = %q, want island name in message", err)
	}
	if logs.FilterMessage("cache warming complete").Len() != 1 {
		t.Error("expected a completion log entry")
	}
}

func TestCacheWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	rec := &mockRecommender{}
	warmer := NewCacheWarmer(rec, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"ios"}, time.Hour) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not return after cancel")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 1 {
		t.Errorf("Recommend called %d times, want 1 (initial warm only)", len(rec.calls))
	}
}
