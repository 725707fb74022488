// Package ratelimit implements a token bucket pacer for outbound API requests.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Cyphercomp/pokefetch/internal/metrics"
)

// Pacer throttles requests toward the upstream API with a shared token bucket.
// A non-positive rate disables pacing entirely.
type Pacer struct {
	limiter *rate.Limiter
}

// Config holds pacer configuration.
type Config struct {
	RatePerSec float64
	Burst      int
}

// New creates a new Pacer.
func New(cfg Config) *Pacer {
	r := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until a token is available, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Measuring the whole Wait call is a good proxy for the delay the
	// limiter introduced; an immediately available token costs ~0.
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(delay)
	}
	return nil
}
