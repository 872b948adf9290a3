package metatile

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Registry keeps at most one fetch in flight per metatile extent.
type Registry struct {
	inflight singleflight.Group
	waiting  atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Fetch begins a fetch for key, or attaches to the one already running.
// The fetch is detached from ctx: a caller giving up gets ctx.Err() while
// the fetch completes for everyone else attached to it. A panic in fn is
// returned to every attached caller as ErrFetchFailed.
func (r *Registry) Fetch(ctx context.Context, key string, fn func(context.Context) (*MetaTile, error)) (*MetaTile, bool, error) {
	detached := context.WithoutCancel(ctx)

	ch := r.inflight.DoChan(key, func() (v any, err error) {
		defer func() {
			if p := recover(); p != nil {
				metrics.MetaTileFetches.WithLabelValues("panic").Inc()
				logger.FromContext(detached).Error("metatile fetch panicked", "key", key, "panic", p)
				v, err = nil, fmt.Errorf("%w: panic: %v", ErrFetchFailed, p)
			}
		}()
		return fn(detached)
	})
	r.waiting.Add(1)
	defer r.waiting.Add(-1)

	select {
	case res := <-ch:
		if res.Shared {
			metrics.MetaTileAttaches.Inc()
		}
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		mt, ok := res.Val.(*MetaTile)
		if !ok {
			return nil, res.Shared, fmt.Errorf("unexpected in-flight result %T", res.Val)
		}
		return mt, res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Waiting is the number of callers currently blocked in Fetch.
func (r *Registry) Waiting() int64 {
	return r.waiting.Load()
}
