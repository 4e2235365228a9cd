package provider

import (
	"context"

	"github.com/ip-report-scanner/internal/types"
	"golang.org/x/time/rate"
)

// ThrottledAdapter wraps an adapter with an outbound rate limiter so the
// worker pool respects the provider's quota regardless of pool size.
type ThrottledAdapter struct {
	inner   Adapter
	limiter *rate.Limiter
}

// Throttle wraps an adapter with a token-bucket limiter
func Throttle(inner Adapter, rps float64, burst int) *ThrottledAdapter {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledAdapter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// ID returns the wrapped provider's identifier
func (t *ThrottledAdapter) ID() string {
	return t.inner.ID()
}

// Scan waits for quota, then delegates. If the context expires while
// waiting, the failure is classified as rate limited so the tracker
// retries it with backoff instead of treating it as a provider fault.
func (t *ThrottledAdapter) Scan(ctx context.Context, address string) (*types.ScanResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, WrapError(types.ErrorClassRateLimited, "local provider quota exhausted", err)
	}
	return t.inner.Scan(ctx, address)
}
