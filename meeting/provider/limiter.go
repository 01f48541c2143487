package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to the wrapped Completer. Concurrent segment analyses share
// one limiter so a wide fan-out does not trip provider rate limits.
type RateLimited struct {
	Next    Completer
	Limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with the given burst.
// perMinute <= 0 disables pacing.
func NewRateLimited(next Completer, perMinute int, burst int) Completer {
	if perMinute <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return RateLimited{
		Next:    next,
		Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (r RateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if r.Next == nil {
		return "", errNilCompleter
	}
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return r.Next.Complete(ctx, req)
}
