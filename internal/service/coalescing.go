package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
)

// requestCoalescer collapses concurrent upstream fetches for the same key
// into one call. Waiters give up after timeout; the shared call keeps running
// and still serves the others.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once per key among concurrent callers. shared reports
// whether the result was delivered to more than one caller. fn receives a
// context that outlives any single caller's cancellation.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.HourlySeries, error)) (models.HourlySeries, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.HourlySeries{}, res.Shared, res.Err
		}
		return res.Val.(models.HourlySeries), res.Shared, nil
	case <-waitCtx.Done():
		return models.HourlySeries{}, false, waitCtx.Err()
	}
}
