package market

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"stock-ai-analyzer/internal/instrument"
)

// Limited wraps an adapter with a minimum request interval. When the source
// is being hit too fast it fails with a RATE_LIMITED error instead of
// waiting, so the fetcher moves on to the next source without delay.
type Limited struct {
	Adapter
	limiter *rate.Limiter
}

func Limit(a Adapter, minInterval time.Duration) *Limited {
	return &Limited{
		Adapter: a,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

func (l *Limited) Fetch(ctx context.Context, code instrument.Code) (Snapshot, error) {
	if !l.limiter.Allow() {
		return Snapshot{}, rateLimited(l.Name(), "local request interval exceeded", nil)
	}
	return l.Adapter.Fetch(ctx, code)
}
