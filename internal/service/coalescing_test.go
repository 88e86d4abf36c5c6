package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls atomic.Int32

	fn := func(ctx context.Context) (models.HourlySeries, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return hourlySeries(), nil
	}

	var wg sync.WaitGroup
	results := make([]models.HourlySeries, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = coalescer.GetOrDo(context.Background(), "37:25", fn)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("request %d error = %v, want nil", i, errs[i])
		}
		if results[i].Len() != 24 {
			t.Errorf("request %d Len() = %d, want 24", i, results[i].Len())
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fn call count = %d, want 1", n)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	wantErr := errors.New("api failure")

	_, _, err := coalescer.GetOrDo(context.Background(), "37:25", func(ctx context.Context) (models.HourlySeries, error) {
		return models.HourlySeries{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrDo() error = %v, want %v", err, wantErr)
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer(20 * time.Millisecond)

	_, _, err := coalescer.GetOrDo(context.Background(), "37:25", func(ctx context.Context) (models.HourlySeries, error) {
		time.Sleep(200 * time.Millisecond)
		return hourlySeries(), nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_DetachedFromCallerCancel(t *testing.T) {
	coalescer := newRequestCoalescer(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	fnErr := make(chan error, 1)
	go func() {
		_, _, _ = coalescer.GetOrDo(ctx, "37:25", func(fctx context.Context) (models.HourlySeries, error) {
			time.Sleep(30 * time.Millisecond)
			fnErr <- fctx.Err()
			return hourlySeries(), nil
		})
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-fnErr:
		if err != nil {
			t.Errorf("shared fetch context err = %v, want nil after caller cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("shared fetch did not complete")
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer(time.Second)
	var calls atomic.Int32
	fn := func(ctx context.Context) (models.HourlySeries, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return hourlySeries(), nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"37:25", "36.7:24.4"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}(key)
	}
	wg.Wait()
	if n := calls.Load(); n != 2 {
		t.Errorf("fn call count = %d, want 2", n)
	}
}
