package oracle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to an Oracle.
type RateLimited struct {
	next    Oracle
	limiter *rate.Limiter
}

// NewRateLimited allows at most rpm calls per minute with no burst. A
// non-positive rpm disables pacing and returns o unchanged.
func NewRateLimited(o Oracle, rpm int) Oracle {
	if rpm <= 0 {
		return o
	}
	return &RateLimited{
		next:    o,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Decide waits for a token, then delegates.
func (r *RateLimited) Decide(ctx context.Context, req DecisionRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Decide(ctx, req)
}
