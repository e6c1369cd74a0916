package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/opsnotify/admin-alerting/internal/domain"
)

// PathLimiters holds one token bucket per delivery path so a digest burst or
// an emergency fan-out cannot starve immediate deliveries at the transport.
// Burst is set equal to the rate so no extra burst capacity accumulates
// beyond the configured per-second maximum.
type PathLimiters struct {
	limiters map[domain.DeliveryPath]*rate.Limiter
}

// New creates a PathLimiters with ratePerSec tokens per second per path.
func New(ratePerSec int) *PathLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec

	return &PathLimiters{
		limiters: map[domain.DeliveryPath]*rate.Limiter{
			domain.PathImmediate: rate.NewLimiter(r, burst),
			domain.PathDigest:    rate.NewLimiter(r, burst),
			domain.PathEmergency: rate.NewLimiter(r, burst),
		},
	}
}

// Wait blocks until the path's limiter grants a token.
// Called immediately before every transport send.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (pl *PathLimiters) Wait(ctx context.Context, path domain.DeliveryPath) error {
	l, ok := pl.limiters[path]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
